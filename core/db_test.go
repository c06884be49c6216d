package core

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPagination_Clean(t *testing.T) {
	tests := []struct {
		name       string
		p          Pagination
		wantPage   int
		wantSize   int
		wantOffset int
	}{
		{name: "defaults", p: Pagination{}, wantPage: 1, wantSize: DefaultPageSize, wantOffset: 0},
		{name: "second page", p: Pagination{Page: 2, PageSize: 10}, wantPage: 2, wantSize: 10, wantOffset: 10},
		{name: "page size capped", p: Pagination{Page: 1, PageSize: 500}, wantPage: 1, wantSize: MaxPageSize, wantOffset: 0},
		{
			name: "huge page", p: Pagination{Page: math.MaxInt, PageSize: MaxPageSize},
			wantPage: MaxPage, wantSize: MaxPageSize, wantOffset: (MaxPage - 1) * MaxPageSize,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.p
			p.Clean()
			assert.Equal(t, tt.wantPage, p.Page)
			assert.Equal(t, tt.wantSize, p.Limit())
			assert.Equal(t, tt.wantOffset, p.Offset())
			assert.GreaterOrEqual(t, p.Offset(), 0)
		})
	}

	assert.Equal(t, 0, Pagination{Page: -3, PageSize: 10}.Offset())
}

func TestNewPageInfo(t *testing.T) {
	info := NewPageInfo(45, Pagination{Page: 2, PageSize: 20})
	assert.Equal(t, PageInfo{Total: 45, Page: 2, PageSize: 20, TotalPages: 3, HasNext: true, HasPrevious: true}, info)

	info = NewPageInfo(0, Pagination{Page: 1, PageSize: 20})
	assert.Equal(t, 0, info.TotalPages)
	assert.False(t, info.HasNext)
	assert.False(t, info.HasPrevious)
}
