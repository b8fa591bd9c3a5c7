package netdef

import "fmt"

// Kind identifies a layer variant. The set is closed: every Kind has exactly
// one Layer implementation in this package.
type Kind int

const (
	KindConv Kind = iota + 1
	KindReLU
	KindPooling
	KindInnerProduct
	KindSoftmax
	KindLRN
	KindDropout
)

var kindNames = map[Kind]string{
	KindConv:         "Conv",
	KindReLU:         "ReLU",
	KindPooling:      "Pooling",
	KindInnerProduct: "InnerProduct",
	KindSoftmax:      "Softmax",
	KindLRN:          "LRN",
	KindDropout:      "Dropout",
}

// Kinds returns every known kind in declaration order.
func Kinds() []Kind {
	return []Kind{KindConv, KindReLU, KindPooling, KindInnerProduct, KindSoftmax, KindLRN, KindDropout}
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Tag is the YAML tag used for the kind, e.g. "!Conv".
func (k Kind) Tag() string { return "!" + k.String() }

// ParseKind maps a kind name (with or without the leading "!") to a Kind.
func ParseKind(s string) (Kind, bool) {
	if len(s) > 0 && s[0] == '!' {
		s = s[1:]
	}
	for k, n := range kindNames {
		if n == s {
			return k, true
		}
	}
	return 0, false
}

// newLayer returns an empty layer of kind k.
func newLayer(k Kind) Layer {
	switch k {
	case KindConv:
		return &Conv{}
	case KindReLU:
		return &ReLU{}
	case KindPooling:
		return &Pooling{}
	case KindInnerProduct:
		return &InnerProduct{}
	case KindSoftmax:
		return &Softmax{}
	case KindLRN:
		return &LRN{}
	case KindDropout:
		return &Dropout{}
	}
	return nil
}
