package domain

import "math"

// Математические константы
const (
	Epsilon = 1e-9
)

// Параметры симуляции по умолчанию
const (
	// DefaultTickQuantum приращение elapsed за один тик (в часах модели)
	DefaultTickQuantum = 0.1
	// MaxProtectedEndpoints количество защищаемых конечных точек в кризисном режиме
	MaxProtectedEndpoints = 2
)

// FloatEquals сравнивает два float64 с учётом Epsilon
func FloatEquals(a, b float64) bool {
	return math.Abs(a-b) < Epsilon
}

// IsZero проверяет, равно ли значение нулю
func IsZero(v float64) bool {
	return math.Abs(v) < Epsilon
}

// Clamp01 ограничивает значение отрезком [0, 1]
func Clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// Lerp линейная интерполяция между a и b
func Lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}
