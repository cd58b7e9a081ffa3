package listing

import "fmt"

func errLimitRange(limit int) error {
	return fmt.Errorf("listing: limit %d out of range [1, 100]", limit)
}
