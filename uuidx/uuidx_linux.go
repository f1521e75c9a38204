package uuidx

import (
	"os"

	"github.com/m-lab/uuid"
)

func fromFile(file *os.File) (string, error) {
	return uuid.FromFile(file)
}
