package raster

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// fakeRunner records invocations and simulates pdfinfo/pdftoppm behavior by
// writing page files into the scratch directory.
type fakeRunner struct {
	pages    int
	infoErr  error
	toppmErr error
	calls    [][]string
}

func (f *fakeRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	switch name {
	case "pdfinfo":
		if f.infoErr != nil {
			return nil, f.infoErr
		}
		return []byte(fmt.Sprintf("Title: x\nPages:          %d\nEncrypted: no\n", f.pages)), nil
	case "pdftoppm":
		if f.toppmErr != nil {
			return nil, f.toppmErr
		}
		first, last := atoiArg(args, "-f"), atoiArg(args, "-l")
		for p := first; p <= last && p <= f.pages; p++ {
			path := filepath.Join(dir, fmt.Sprintf("page-%02d.png", p))
			if err := os.WriteFile(path, []byte(fmt.Sprintf("png-%d", p)), 0o600); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}
	return nil, fmt.Errorf("unexpected command %s", name)
}

func atoiArg(args []string, flag string) int {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			var n int
			fmt.Sscanf(args[i+1], "%d", &n)
			return n
		}
	}
	return 0
}

func TestPageCount(t *testing.T) {
	runner := &fakeRunner{pages: 12}
	p := NewPoppler(Config{}, WithRunner(runner))
	n, err := p.PageCount(context.Background(), []byte("%PDF"))
	if err != nil {
		t.Fatalf("PageCount: %v", err)
	}
	if n != 12 {
		t.Fatalf("pages = %d, want 12", n)
	}
}

func TestPageCountPropagatesError(t *testing.T) {
	runner := &fakeRunner{infoErr: errors.New("corrupt")}
	p := NewPoppler(Config{}, WithRunner(runner))
	if _, err := p.PageCount(context.Background(), []byte("junk")); err == nil {
		t.Fatal("expected error from pdfinfo failure")
	}
}

func TestRasterizeReturnsPagesInOrder(t *testing.T) {
	runner := &fakeRunner{pages: 12}
	p := NewPoppler(Config{DPI: 150}, WithRunner(runner))
	images, err := p.Rasterize(context.Background(), []byte("%PDF"), 6, 10)
	if err != nil {
		t.Fatalf("Rasterize: %v", err)
	}
	if len(images) != 5 {
		t.Fatalf("images = %d, want 5", len(images))
	}
	for i, img := range images {
		want := fmt.Sprintf("png-%d", 6+i)
		if string(img) != want {
			t.Fatalf("image %d = %q, want %q", i, img, want)
		}
	}
}

func TestRasterizePastEndIsEmpty(t *testing.T) {
	runner := &fakeRunner{pages: 12, toppmErr: errors.New("Wrong page range given")}
	p := NewPoppler(Config{}, WithRunner(runner))
	images, err := p.Rasterize(context.Background(), []byte("%PDF"), 13, 17)
	if err != nil {
		t.Fatalf("Rasterize past end: %v", err)
	}
	if len(images) != 0 {
		t.Fatalf("images = %d, want 0", len(images))
	}
}

func TestRasterizeClampsNothingItself(t *testing.T) {
	runner := &fakeRunner{pages: 12}
	p := NewPoppler(Config{}, WithRunner(runner))
	images, err := p.Rasterize(context.Background(), []byte("%PDF"), 11, 15)
	if err != nil {
		t.Fatalf("Rasterize: %v", err)
	}
	if len(images) != 2 {
		t.Fatalf("images = %d, want the 2 real pages", len(images))
	}
}

func TestRasterizeRejectsInvalidRange(t *testing.T) {
	p := NewPoppler(Config{}, WithRunner(&fakeRunner{pages: 3}))
	if _, err := p.Rasterize(context.Background(), []byte("%PDF"), 0, 2); err == nil {
		t.Fatal("expected error for first < 1")
	}
	if _, err := p.Rasterize(context.Background(), []byte("%PDF"), 5, 2); err == nil {
		t.Fatal("expected error for last < first")
	}
}

func TestParsePageCountMalformed(t *testing.T) {
	if _, err := parsePageCount([]byte("Pages: many")); err == nil {
		t.Fatal("expected error for malformed count")
	}
	if _, err := parsePageCount([]byte("Title: x")); err == nil {
		t.Fatal("expected error for missing count")
	}
}

func TestPageNumberOrdering(t *testing.T) {
	if pageNumber("/tmp/x/page-10.png") != 10 {
		t.Fatal("failed to parse padded page number")
	}
	if pageNumber("/tmp/x/page-2.png") != 2 {
		t.Fatal("failed to parse short page number")
	}
}
