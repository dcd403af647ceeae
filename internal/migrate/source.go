package migrate

import (
	"context"
	"strconv"

	"github.com/tphakala/datamover/internal/errors"
	"github.com/tphakala/datamover/internal/etl"
)

// Page is one page of documents. HasMore is false on the last page.
type Page struct {
	Docs    []etl.Record
	HasMore bool
	// Token is the continuation reached after this page, for logs and reports.
	Token string
}

// Source reads documents page by page. Throttling is reported as
// *etl.RateLimitedError carrying the suggested delay.
type Source interface {
	ReadPage(ctx context.Context, pageSize int) (Page, error)
}

// maxEmptyPages bounds the number of consecutive empty pages that still
// claim more data, which some document stores return while scanning.
const maxEmptyPages = 100

// pagePaginator adapts a Source to etl.Paginator. It stops after the page
// reporting HasMore=false. A page larger than pageSize is split and the rest
// is served before the source is read again.
type pagePaginator struct {
	source   Source
	pageSize int
	page     int
	last     bool
	done     bool

	held     []etl.Record
	heldPos  string
	heldPart int
}

func newPagePaginator(source Source, pageSize int) *pagePaginator {
	return &pagePaginator{source: source, pageSize: pageSize}
}

func (p *pagePaginator) Next(ctx context.Context) (etl.Batch, error) {
	if len(p.held) > 0 {
		return p.nextHeld(), nil
	}
	if p.done || p.last {
		p.done = true
		return etl.Batch{}, nil
	}

	for range maxEmptyPages {
		page, err := p.source.ReadPage(ctx, p.pageSize)
		if err != nil {
			return etl.Batch{}, err
		}
		p.page++
		p.last = !page.HasMore

		if len(page.Docs) > p.pageSize {
			p.held = page.Docs
			p.heldPos = position(p.page, page.Token)
			p.heldPart = 0
			return p.nextHeld(), nil
		}
		if len(page.Docs) > 0 {
			return etl.Batch{Records: page.Docs, Position: position(p.page, page.Token)}, nil
		}
		if p.last {
			p.done = true
			return etl.Batch{}, nil
		}
	}

	return etl.Batch{}, errors.Newf("document source returned %d empty pages in a row", maxEmptyPages).
		Component("migrate").
		Category(errors.CategoryState).
		Build()
}

// nextHeld cuts the next pageSize records off an oversized page.
func (p *pagePaginator) nextHeld() etl.Batch {
	n := min(p.pageSize, len(p.held))
	p.heldPart++
	batch := etl.Batch{
		Records:  p.held[:n:n],
		Position: p.heldPos + "#" + strconv.Itoa(p.heldPart),
	}
	p.held = p.held[n:]
	if len(p.held) == 0 {
		p.held = nil
	}
	return batch
}

func (p *pagePaginator) Done() bool {
	return p.done
}

func position(page int, token string) string {
	if token == "" {
		return "page:" + strconv.Itoa(page)
	}
	return "page:" + strconv.Itoa(page) + ":" + token
}
