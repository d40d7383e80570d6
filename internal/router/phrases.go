package router

import "math/rand"

// Picker chooses one phrase from a non-empty pool. The router takes it as a
// dependency so tests can substitute a deterministic selector.
type Picker func(pool []string) string

// RandomPicker picks uniformly at random.
func RandomPicker(pool []string) string {
	return pool[rand.Intn(len(pool))]
}
