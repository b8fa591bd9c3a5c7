package builder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"bernet/internal/archive"
	"bernet/internal/zoo"
	"bernet/pkg/netdef"
)

const tinyDoc = `name: tiny
data_url: %s
data_sha256: %s
input_shape: [1, 3, 8, 8]
layers:
  - !Conv {name: c, kernel_h: 3, kernel_w: 3, num_feature_maps: 4, bias: c_b}
  - !InnerProduct {name: fc, n_units: 2}
`

var tinyIndex = netdef.MapIndex{
	"c_weight":  {4, 3, 3, 3},
	"c_b":       {4},
	"fc_weight": {144, 2},
}

// tinyModel writes an archive file and returns a model pointing at it. The
// model's digest is computed over want, the archive holds got.
func tinyModel(t *testing.T, want, got []byte) *netdef.Model {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tiny.bin")
	if err := os.WriteFile(path, got, 0644); err != nil {
		t.Fatal(err)
	}
	sum := sha256.Sum256(want)
	m, err := netdef.Decode([]byte(fmt.Sprintf(tinyDoc, "file://"+path, hex.EncodeToString(sum[:]))))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return m
}

type spyOpener struct {
	calls int
	idx   netdef.TensorIndex
}

func (s *spyOpener) open(context.Context, *archive.Archive) (netdef.TensorIndex, error) {
	s.calls++
	return s.idx, nil
}

func newBuilder(t *testing.T, opts ...Option) *Builder {
	t.Helper()
	f, err := archive.New(archive.WithCacheDir(t.TempDir()))
	if err != nil {
		t.Fatal(err)
	}
	b, err := New(append([]Option{WithFetcher(f)}, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestBuild_BindsVerifiedArchive(t *testing.T) {
	spy := &spyOpener{idx: tinyIndex}
	b := newBuilder(t, WithIndexOpener(spy.open))
	data := []byte("tiny weights")

	n, err := b.Build(context.Background(), tinyModel(t, data, data))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if spy.calls != 1 || !n.Bound {
		t.Errorf("opener calls = %d, bound = %v", spy.calls, n.Bound)
	}
	if n.Archive == nil || n.Archive.Size != int64(len(data)) {
		t.Errorf("archive: %+v", n.Archive)
	}
	var names []string
	for _, bd := range n.Bindings {
		names = append(names, bd.Name)
	}
	if diff := cmp.Diff([]string{"c_weight", "c_b", "fc_weight"}, names); diff != "" {
		t.Errorf("bindings (-want +got):\n%s", diff)
	}
}

func TestBuild_ChecksumMismatchStopsBeforeBinding(t *testing.T) {
	spy := &spyOpener{idx: tinyIndex}
	b := newBuilder(t, WithIndexOpener(spy.open))

	n, err := b.Build(context.Background(), tinyModel(t, []byte("published"), []byte("tampered")))
	if !errors.Is(err, netdef.ErrIntegrity) {
		t.Fatalf("want ErrIntegrity, got %v", err)
	}
	if n != nil {
		t.Errorf("network returned on integrity failure: %+v", n)
	}
	if spy.calls != 0 {
		t.Errorf("index opener called %d times after checksum mismatch", spy.calls)
	}
}

type failingFetcher struct{ calls int }

func (f *failingFetcher) Fetch(context.Context, string, string) (*archive.Archive, error) {
	f.calls++
	return nil, &netdef.Error{Kind: netdef.ErrIntegrity, Msg: "checksum mismatch"}
}

func TestBuild_InvalidModelNeverFetches(t *testing.T) {
	ff := &failingFetcher{}
	b, _ := New(WithFetcher(ff))
	m := tinyModel(t, nil, nil)
	m.Layers[1].Common().Source = "nope"

	if _, err := b.Build(context.Background(), m); !errors.Is(err, netdef.ErrReference) {
		t.Fatalf("want ErrReference, got %v", err)
	}
	if ff.calls != 0 {
		t.Errorf("fetcher called for an invalid model")
	}
}

func TestBuild_BindMismatch(t *testing.T) {
	idx := netdef.MapIndex{"c_weight": {4, 3, 3, 3}, "c_b": {4}, "fc_weight": {2, 144}}
	b := newBuilder(t, WithIndexOpener(func(context.Context, *archive.Archive) (netdef.TensorIndex, error) {
		return idx, nil
	}))
	data := []byte("w")
	if _, err := b.Build(context.Background(), tinyModel(t, data, data)); !errors.Is(err, netdef.ErrShape) {
		t.Fatalf("want ErrShape, got %v", err)
	}
}

func TestBuild_WithoutOpenerReturnsPlan(t *testing.T) {
	b := newBuilder(t)
	data := []byte("w")
	n, err := b.Build(context.Background(), tinyModel(t, data, data))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if n.Bound || n.Archive == nil || len(n.Bindings) != 3 {
		t.Errorf("network: bound=%v archive=%v bindings=%d", n.Bound, n.Archive, len(n.Bindings))
	}
}

func TestBuild_NoDataURL(t *testing.T) {
	b, _ := New()
	m := tinyModel(t, nil, nil)
	m.DataURL = ""
	n, err := b.Build(context.Background(), m)
	if err != nil || n.Archive != nil {
		t.Fatalf("Build = %+v, %v", n, err)
	}

	m.DataURL = "file:///x"
	if _, err := b.Build(context.Background(), m); err == nil {
		t.Error("expected error without a fetcher")
	}
}

func TestPlan_AlexNet(t *testing.T) {
	m, err := zoo.Load("alexnet")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := New()
	n, err := b.Plan(m)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(n.Bindings) != 16 {
		t.Errorf("want 16 parameter bindings, got %d", len(n.Bindings))
	}
	if n.ParamCount() != 60965224 {
		t.Errorf("ParamCount = %d", n.ParamCount())
	}
	if n.Bindings[0].Name != "conv1_weight" || !n.Bindings[0].Shape.Equal(netdef.Shape{96, 3, 11, 11}) {
		t.Errorf("first binding: %+v", n.Bindings[0])
	}
}

func TestCheckAll_KeepsOrder(t *testing.T) {
	dir := t.TempDir()
	write := func(name, doc string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(doc), 0644); err != nil {
			t.Fatal(err)
		}
		return p
	}
	alex, _ := zoo.Raw("alexnet")
	paths := []string{
		write("alexnet.yaml", string(alex)),
		write("forward.yaml", "name: f\nlayers:\n  - !ReLU {name: a, source: b}\n  - !ReLU {name: b}\n"),
		filepath.Join(dir, "missing.yaml"),
		write("shape.yaml", "name: s\ninput_shape: [1, 3, 4, 4]\nlayers:\n  - !Pooling {name: p, poolsize: [5, 5], stride: [1, 1]}\n"),
	}

	b, _ := New()
	results := b.CheckAll(context.Background(), paths, 2)
	if len(results) != len(paths) {
		t.Fatalf("got %d results", len(results))
	}
	for i, r := range results {
		if r.Path != paths[i] {
			t.Errorf("result %d path = %s, want %s", i, r.Path, paths[i])
		}
	}
	if results[0].Err != nil || results[0].Network == nil {
		t.Errorf("alexnet: %v", results[0].Err)
	}
	if !errors.Is(results[1].Err, netdef.ErrReference) {
		t.Errorf("forward: want ErrReference, got %v", results[1].Err)
	}
	if !errors.Is(results[2].Err, os.ErrNotExist) {
		t.Errorf("missing: want ErrNotExist, got %v", results[2].Err)
	}
	if !errors.Is(results[3].Err, netdef.ErrShape) {
		t.Errorf("shape: want ErrShape, got %v", results[3].Err)
	}
}

func TestCheckAll_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b, _ := New()
	results := b.CheckAll(ctx, []string{"a.yaml"}, 0)
	if !errors.Is(results[0].Err, context.Canceled) {
		t.Errorf("want context.Canceled, got %v", results[0].Err)
	}
}
