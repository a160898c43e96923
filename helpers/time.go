package helpers

import "time"

func IntSecondDefault(x int, def time.Duration) time.Duration {
	if x == 0 {
		return def
	}
	return time.Duration(x) * time.Second
}

// Fractional seconds from config or env, e.g. interval=0.5
func FloatSecondDefault(x float64, def time.Duration) time.Duration {
	if x == 0 {
		return def
	}
	return time.Duration(x * float64(time.Second))
}

func IntDefault(x, def int) int {
	if x == 0 {
		return def
	}
	return x
}
