package domain

import (
	"math"
	"strings"
	"sync"

	"multimodal/pkg/apperror"
)

// Mode вид транспорта маршрута
type Mode string

const (
	ModeSea  Mode = "Sea"
	ModeAir  Mode = "Air"
	ModeLand Mode = "Land"
)

// Modes возвращает все виды транспорта в фиксированном порядке
func Modes() []Mode {
	return []Mode{ModeSea, ModeAir, ModeLand}
}

// ParseMode разбирает вид транспорта без учёта регистра
func ParseMode(s string) (Mode, error) {
	for _, m := range Modes() {
		if strings.EqualFold(strings.TrimSpace(s), string(m)) {
			return m, nil
		}
	}
	return "", apperror.Newf(apperror.CodeUnknownMode, "unknown transport mode %q", s)
}

// Valid проверяет, что вид транспорта известен
func (m Mode) Valid() bool {
	switch m {
	case ModeSea, ModeAir, ModeLand:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление
func (m Mode) String() string {
	return string(m)
}

// DefaultSpeed скорость по умолчанию (единиц в час)
func (m Mode) DefaultSpeed() float64 {
	switch m {
	case ModeSea:
		return 30
	case ModeAir:
		return 800
	case ModeLand:
		return 60
	default:
		return 0
	}
}

// SpeedBounds допустимый диапазон скорости
func (m Mode) SpeedBounds() (lo, hi float64) {
	if m == ModeAir {
		return 1, 1000
	}
	return 1, 100
}

// SpeedTable текущие скорости видов транспорта.
// Безопасна для конкурентного использования.
type SpeedTable struct {
	mu     sync.RWMutex
	speeds map[Mode]float64
}

// NewSpeedTable создаёт таблицу со скоростями по умолчанию
func NewSpeedTable() *SpeedTable {
	t := &SpeedTable{speeds: make(map[Mode]float64, 3)}
	t.Reset()
	return t
}

// Get возвращает текущую скорость вида транспорта
func (t *SpeedTable) Get(m Mode) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.speeds[m]
}

// Set устанавливает скорость; значение вне диапазона отклоняется
func (t *SpeedTable) Set(m Mode, value float64) error {
	if !m.Valid() {
		return apperror.Newf(apperror.CodeUnknownMode, "unknown transport mode %q", m)
	}
	lo, hi := m.SpeedBounds()
	if math.IsNaN(value) || value < lo || value > hi {
		return apperror.NewWithField(apperror.CodeSpeedOutOfRange, "speed is out of range", string(m)).
			WithDetails("min", lo).
			WithDetails("max", hi).
			WithDetails("value", value)
	}

	t.mu.Lock()
	t.speeds[m] = value
	t.mu.Unlock()
	return nil
}

// Reset возвращает скорости по умолчанию
func (t *SpeedTable) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, m := range Modes() {
		t.speeds[m] = m.DefaultSpeed()
	}
}

// All возвращает копию таблицы
func (t *SpeedTable) All() map[Mode]float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[Mode]float64, len(t.speeds))
	for m, v := range t.speeds {
		out[m] = v
	}
	return out
}
