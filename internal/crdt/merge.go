package crdt

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MergeJSON выполняет структурное слияние двух конкурентно измененных
// JSON-документов. Правила:
//   - скалярные значения: при расхождении побеждает remote;
//   - массивы: объединение с дедупликацией (локальный порядок, затем
//     невиданные удаленные элементы);
//   - объекты: рекурсивное слияние по ключам, ключи только из remote
//     добавляются.
//
// Слияние идемпотентно на совпадающих входах: MergeJSON(x, x) == x.
// Известное ограничение: объединение массивов может переупорядочить
// семантически упорядоченные списки.
func MergeJSON(local, remote []byte) ([]byte, error) {
	if len(local) == 0 {
		return remote, nil
	}
	if len(remote) == 0 {
		return local, nil
	}

	var localVal, remoteVal any
	if err := json.Unmarshal(local, &localVal); err != nil {
		return nil, fmt.Errorf("decode local document: %w", err)
	}
	if err := json.Unmarshal(remote, &remoteVal); err != nil {
		return nil, fmt.Errorf("decode remote document: %w", err)
	}

	merged := mergeValue(localVal, remoteVal)

	out, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("encode merged document: %w", err)
	}
	return out, nil
}

// mergeValue сливает два декодированных JSON значения.
func mergeValue(local, remote any) any {
	localMap, localIsMap := local.(map[string]any)
	remoteMap, remoteIsMap := remote.(map[string]any)
	if localIsMap && remoteIsMap {
		return mergeObjects(localMap, remoteMap)
	}

	localArr, localIsArr := local.([]any)
	remoteArr, remoteIsArr := remote.([]any)
	if localIsArr && remoteIsArr {
		return mergeArrays(localArr, remoteArr)
	}

	// Скаляры или несовпадающие типы: при расхождении побеждает remote.
	if equalValues(local, remote) {
		return local
	}
	return remote
}

func mergeObjects(local, remote map[string]any) map[string]any {
	merged := make(map[string]any, len(local)+len(remote))
	for key, value := range local {
		merged[key] = value
	}
	for key, remoteValue := range remote {
		if localValue, ok := merged[key]; ok {
			merged[key] = mergeValue(localValue, remoteValue)
			continue
		}
		merged[key] = remoteValue
	}
	return merged
}

func mergeArrays(local, remote []any) []any {
	merged := make([]any, 0, len(local)+len(remote))
	seen := make(map[string]struct{}, len(local)+len(remote))

	appendUnique := func(value any) {
		key := canonicalKey(value)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		merged = append(merged, value)
	}

	for _, value := range local {
		appendUnique(value)
	}
	for _, value := range remote {
		appendUnique(value)
	}
	return merged
}

// canonicalKey возвращает каноническое представление значения для
// дедупликации. encoding/json сортирует ключи map, поэтому представление
// детерминировано.
func canonicalKey(value any) string {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(data)
}

func equalValues(a, b any) bool {
	aj, errA := json.Marshal(a)
	bj, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(aj, bj)
}
