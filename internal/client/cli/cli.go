package cli

import (
	"fmt"

	"github.com/iudanet/offsync/internal/client/netmon"
	"github.com/iudanet/offsync/internal/client/sync"
)

// Cli связывает команды с движком синхронизации.
type Cli struct {
	Service *sync.Service
	Monitor *netmon.Monitor
}

// New creates the command dispatcher over a started sync engine
func New(service *sync.Service, monitor *netmon.Monitor) *Cli {
	return &Cli{
		Service: service,
		Monitor: monitor,
	}
}

func PrintUsage() {
	fmt.Println("offsync client")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  offsync [OPTIONS] COMMAND")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --version             Show version information")
	fmt.Println("  --server URL          Server URL (default: http://localhost:8080)")
	fmt.Println("  --db PATH             Path to local database (default: offsync-client.db)")
	fmt.Println("  --strategy NAME       Conflict resolution strategy (default: last_write_wins)")
	fmt.Println()
	fmt.Println("Strategies:")
	fmt.Println("  last_write_wins, first_write_wins, server_wins, client_wins,")
	fmt.Println("  causal_merge, manual")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  put <type> <id> <json>      Create or update an entity")
	fmt.Println("  get <type> <id>             Show an entity")
	fmt.Println("  list <type>                 List entities of a type")
	fmt.Println("  delete <type> <id>          Delete an entity (soft delete)")
	fmt.Println("  sync                        Push pending operations to the server")
	fmt.Println("  status                      Show engine state, queue and statistics")
	fmt.Println("  conflicts                   List conflicts awaiting manual resolution")
	fmt.Println("  resolve <type> <id> <json>  Resolve a parked conflict with explicit data")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  offsync put note shopping '{\"items\":[\"milk\"]}'")
	fmt.Println("  offsync list note")
	fmt.Println("  offsync sync")
	fmt.Println("  offsync --strategy causal_merge sync")
	fmt.Println("  offsync resolve note shopping '{\"items\":[\"milk\",\"bread\"]}'")
}
