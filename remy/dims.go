package remy

import (
	"fmt"
	"strconv"
)

// NumFields is the number of fields of a Memory, active or not.
const NumFields = 9

// Dims is the number of Memory axes that take part in comparisons. Trained
// tables either ignore the telemetry signals (Dims7) or use them (Dims9).
type Dims int

const (
	// Dims7 compares the seven flow statistics only.
	Dims7 Dims = 7
	// Dims9 also compares the queue and link telemetry signals.
	Dims9 Dims = 9
)

// Valid reports whether d is one of the supported dimensionalities.
func (d Dims) Valid() bool {
	return d == Dims7 || d == Dims9
}

func (d Dims) String() string {
	return strconv.Itoa(int(d))
}

// ParseDims parses the textual form used by flags and table files.
func ParseDims(s string) (Dims, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDims, s)
	}
	d := Dims(n)
	if !d.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidDims, n)
	}
	return d, nil
}
