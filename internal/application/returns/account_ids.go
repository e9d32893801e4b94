package returns

import (
	"encoding/json"
	"fmt"
	"strings"
)

// AccountIDs is a normalised, de-duplicated list of account ids. It is parsed the same
// way from a single id, a comma-joined string or an array.
type AccountIDs []string

// ParseAccountIDs splits each value on commas, trims blanks and drops duplicates,
// keeping first-seen order.
func ParseAccountIDs(values ...string) AccountIDs {
	seen := make(map[string]struct{})
	var ids AccountIDs
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			id := strings.TrimSpace(part)
			if id == "" {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}

// UnmarshalJSON accepts a string or an array of strings.
func (a *AccountIDs) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*a = nil
		return nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var values []string
		if err := json.Unmarshal(data, &values); err != nil {
			return fmt.Errorf("accountId must be a string or an array of strings: %w", err)
		}
		*a = ParseAccountIDs(values...)
		return nil
	}
	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return fmt.Errorf("accountId must be a string or an array of strings: %w", err)
	}
	*a = ParseAccountIDs(value)
	return nil
}
