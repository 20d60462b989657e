package extract

import (
	"fmt"

	"github.com/lu4p/cat"
)

// extractRich covers rtf and odt; cat sniffs the format from the bytes.
func extractRich(data []byte) (string, error) {
	txt, err := cat.FromBytes(data)
	if err != nil {
		return "", fmt.Errorf("convert document: %w", err)
	}
	return txt, nil
}
