package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPageNormalize(t *testing.T) {
	assert.Equal(t, Page{Page: 1, Limit: DefaultLimit}, Page{}.Normalize())
	assert.Equal(t, Page{Page: 3, Limit: MaxLimit}, Page{Page: 3, Limit: 500}.Normalize())
	assert.Equal(t, 20, Page{Page: 3, Limit: 10}.Offset())
	assert.Equal(t, 0, Page{Page: -2, Limit: 10}.Offset())
}

func TestTotalPages(t *testing.T) {
	cases := []struct {
		total int64
		limit int
		want  int
	}{
		{0, 10, 0},
		{10, 10, 1},
		{11, 10, 2},
		{25, 0, 3},
		{250, 1000, 3},
	}
	for _, tc := range cases {
		assert.Equalf(t, tc.want, TotalPages(tc.total, tc.limit), "total=%d limit=%d", tc.total, tc.limit)
	}
}

func TestPageMeta(t *testing.T) {
	meta := Page{Page: 2, Limit: 0}.Meta(11)
	assert.Equal(t, Meta{Page: 2, Limit: DefaultLimit, TotalRecords: 11, TotalPages: 2}, meta)
}
