package netdef

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func mustBuild(t *testing.T, doc string) *Graph {
	t.Helper()
	m, err := Decode([]byte(doc))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	g, err := Build(m)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return g
}

func TestConvDim(t *testing.T) {
	tests := []struct {
		in, k, s int
		border   string
		want     int
	}{
		{227, 11, 4, BorderValid, 55},
		{55, 3, 2, BorderValid, 27},
		{27, 5, 1, BorderSame, 27},
		{27, 3, 2, BorderSame, 14},
		{8, 8, 1, BorderValid, 1},
	}
	for _, tt := range tests {
		got, err := convDim(tt.in, tt.k, tt.s, tt.border)
		if err != nil || got != tt.want {
			t.Errorf("convDim(%d, %d, %d, %s) = %d, %v; want %d", tt.in, tt.k, tt.s, tt.border, got, err, tt.want)
		}
	}
	if _, err := convDim(4, 5, 1, BorderValid); !errors.Is(err, errEmptyOutput) {
		t.Errorf("window larger than input: got %v", err)
	}
}

func TestInfer_AnisotropicStride(t *testing.T) {
	g := mustBuild(t, `name: aniso
input_shape: [1, 2, 20, 30]
layers:
  - !Conv {name: c, kernel_h: 5, kernel_w: 3, num_feature_maps: 4, stride_h: 3, stride_v: 5, bias: c_b}
`)
	shapes, err := Infer(g)
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	// height: (20-5)/5+1 = 4, width: (30-3)/3+1 = 10
	if diff := cmp.Diff(Shape{1, 4, 4, 10}, shapes["c"].Output); diff != "" {
		t.Errorf("output (-want +got):\n%s", diff)
	}
	want := map[string]Shape{RoleWeight: {4, 2, 5, 3}, RoleBias: {4}}
	if diff := cmp.Diff(want, shapes["c"].Params); diff != "" {
		t.Errorf("params (-want +got):\n%s", diff)
	}
	if got := shapes.ParamCount(); got != 4*2*5*3+4 {
		t.Errorf("ParamCount = %d", got)
	}
}

func TestInfer_Violations(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		msg  string
	}{
		{
			name: "window too large",
			doc:  "input_shape: [1, 1, 4, 4]\nlayers:\n  - !Pooling {name: p, poolsize: [5, 5], stride: [1, 1]}\n",
			msg:  "window 5 larger than input 4",
		},
		{
			name: "group vs input channels",
			doc:  "input_shape: [1, 3, 8, 8]\nlayers:\n  - !Conv {name: c, kernel_h: 1, kernel_w: 1, num_feature_maps: 4, group: 2}\n",
			msg:  "does not divide 3 input channels",
		},
		{
			name: "inner product rank",
			doc:  "input_shape: [6]\nlayers:\n  - !InnerProduct {name: fc, n_units: 2}\n",
			msg:  "batch axis",
		},
		{
			name: "unknown input",
			doc:  "layers:\n  - !ReLU {name: r}\n",
			msg:  "input shape unknown",
		},
		{
			name: "first layer override",
			doc:  "input_shape: [1, 4]\nlayers:\n  - !ReLU {name: r, input_shape: [1, 5]}\n",
			msg:  "declared [1, 5], source produces [1, 4]",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := mustBuild(t, "name: bad\n"+tt.doc)
			_, err := Infer(g)
			if !errors.Is(err, ErrShape) {
				t.Fatalf("want ErrShape, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.msg) {
				t.Errorf("error %q does not mention %q", err, tt.msg)
			}
		})
	}
}

func TestInfer_DeclaredShapeWithoutModelInput(t *testing.T) {
	g := mustBuild(t, `name: declared
layers:
  - !InnerProduct {name: fc, input_shape: [2, 3, 4], n_units: 5, bias: true}
  - !Softmax {name: prob}
`)
	shapes, err := Infer(g)
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if diff := cmp.Diff(Shape{12, 5}, shapes["fc"].Params[RoleWeight]); diff != "" {
		t.Errorf("flattened weight (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(Shape{2, 5}, shapes["prob"].Output); diff != "" {
		t.Errorf("prob (-want +got):\n%s", diff)
	}
}

func TestInfer_SoftmaxKeepsFeatureMaps(t *testing.T) {
	g := mustBuild(t, `name: dense
input_shape: [1, 3, 8, 8]
layers:
  - !Conv {name: score, kernel_h: 1, kernel_w: 1, num_feature_maps: 4}
  - !Softmax {name: prob}
`)
	shapes, err := Infer(g)
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if diff := cmp.Diff(Shape{1, 4, 8, 8}, shapes["prob"].Output); diff != "" {
		t.Errorf("prob (-want +got):\n%s", diff)
	}
	if n := shapes["prob"].ParamCount(); n != 0 {
		t.Errorf("softmax params = %d", n)
	}
}

func TestBind(t *testing.T) {
	g := mustBuild(t, `name: bind
input_shape: [1, 3, 8, 8]
layers:
  - !Conv {name: c, kernel_h: 3, kernel_w: 3, num_feature_maps: 4, bias: c_b}
  - !InnerProduct {name: fc, n_units: 2}
`)
	shapes, err := Infer(g)
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}

	idx := MapIndex{
		"c_weight":  {4, 3, 3, 3},
		"c_b":       {4},
		"fc_weight": {144, 2},
	}
	bs, err := Bind(g, shapes, idx)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if len(bs) != 3 || bs[2].Name != "fc_weight" {
		t.Errorf("bindings: %+v", bs)
	}

	idx["fc_weight"] = Shape{2, 144}
	delete(idx, "c_b")
	_, err = Bind(g, shapes, idx)
	if !errors.Is(err, ErrReference) || !errors.Is(err, ErrShape) {
		t.Fatalf("want ErrReference and ErrShape, got %v", err)
	}
	if vs := Violations(err); len(vs) != 2 {
		t.Errorf("want 2 violations, got %v", vs)
	}
}

func TestLoadManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.yaml")
	data := "tensors:\n  conv1_weight: [96, 3, 11, 11]\n  conv1_bias: [96]\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	idx, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if diff := cmp.Diff([]string{"conv1_bias", "conv1_weight"}, idx.Names()); diff != "" {
		t.Errorf("names (-want +got):\n%s", diff)
	}
	if s, ok := idx.Lookup("conv1_weight"); !ok || !s.Equal(Shape{96, 3, 11, 11}) {
		t.Errorf("Lookup = %v, %v", s, ok)
	}
}
