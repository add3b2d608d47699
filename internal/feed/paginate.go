package feed

import (
	"fmt"

	"github.com/npezzotti/go-echoes/internal/apperr"
	"github.com/npezzotti/go-echoes/internal/types"
)

const (
	PageSize = 6
	MaxPages = 3
)

// TotalPages is the number of selectable pages for n echoes: at least one,
// at most MaxPages.
func TotalPages(n int) int {
	pages := (n + PageSize - 1) / PageSize
	return max(1, min(pages, MaxPages))
}

// Paginate returns the requested page of echoes. Pages outside 1..MaxPages
// are rejected; a page past the end of the data is empty.
func Paginate(echoes []types.Echo, page int) (types.EchoPage, error) {
	if page < 1 || page > MaxPages {
		return types.EchoPage{}, apperr.Validation(apperr.CodeInvalidPage,
			fmt.Sprintf("page must be between 1 and %d", MaxPages))
	}

	n := len(echoes)
	result := types.EchoPage{
		Echoes:     []types.Echo{},
		Page:       page,
		TotalPages: TotalPages(n),
		Total:      n,
	}

	start := (page - 1) * PageSize
	if start >= n {
		return result, nil
	}

	end := min(start+PageSize, n)
	result.Echoes = echoes[start:end]

	return result, nil
}
