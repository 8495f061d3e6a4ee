//go:build !race

package remember

func passwordHashCost() int {
	return 12
}
