package ga

import "math/rand"

// initializePopulation creates the seeded starting population. An empty
// chromosome still yields one individual so the loop structure holds.
func initializePopulation(populationSize, chromosomeLen, robotCount int, rng *rand.Rand) [][]int {
	if chromosomeLen == 0 {
		return [][]int{{}}
	}
	population := make([][]int, populationSize)
	for p := range population {
		chromosome := make([]int, chromosomeLen)
		for i := range chromosome {
			chromosome[i] = rng.Intn(robotCount)
		}
		population[p] = chromosome
	}
	return population
}

// tournamentSelect picks the best of k random individuals, breaking score
// ties by the lower population index for determinism.
func tournamentSelect(population [][]int, fitnesses []float64, rng *rand.Rand, k int) []int {
	bestIdx := -1
	for i := 0; i < k; i++ {
		idx := rng.Intn(len(population))
		if bestIdx == -1 ||
			fitnesses[idx] < fitnesses[bestIdx] ||
			(fitnesses[idx] == fitnesses[bestIdx] && idx < bestIdx) {
			bestIdx = idx
		}
	}
	child := make([]int, len(population[bestIdx]))
	copy(child, population[bestIdx])
	return child
}

// crossover performs one-point crossover with the cut in [1, len).
func crossover(parentA, parentB []int, rng *rand.Rand) ([]int, []int) {
	if len(parentA) <= 1 {
		a := make([]int, len(parentA))
		b := make([]int, len(parentB))
		copy(a, parentA)
		copy(b, parentB)
		return a, b
	}
	point := 1 + rng.Intn(len(parentA)-1)
	childA := make([]int, len(parentA))
	childB := make([]int, len(parentB))
	copy(childA[:point], parentA[:point])
	copy(childA[point:], parentB[point:])
	copy(childB[:point], parentB[:point])
	copy(childB[point:], parentA[point:])
	return childA, childB
}

// mutate applies per-gene point mutation in place.
func mutate(chromosome []int, robotCount int, mutationRate float64, rng *rand.Rand) []int {
	for i := range chromosome {
		if rng.Float64() < mutationRate {
			chromosome[i] = rng.Intn(robotCount)
		}
	}
	return chromosome
}
