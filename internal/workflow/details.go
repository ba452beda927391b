package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Kind is the IP category of a submission type.
type Kind string

const (
	KindPatent           Kind = "patent"
	KindTrademark        Kind = "trademark"
	KindCopyright        Kind = "copyright"
	KindIndustrialDesign Kind = "industrial_design"
)

// Details is the kind-specific payload of a submission.
type Details interface {
	Kind() Kind
	Validate() error
}

// PatentDetails describes an invention.
type PatentDetails struct {
	InventionTitle string   `json:"invention_title"`
	Inventors      []string `json:"inventors"`
	ClaimCount     int      `json:"claim_count"`
	PriorityDate   string   `json:"priority_date,omitempty"`
}

func (PatentDetails) Kind() Kind { return KindPatent }

func (d PatentDetails) Validate() error {
	if strings.TrimSpace(d.InventionTitle) == "" {
		return &ValidationError{Field: "details.invention_title", Reason: "is required"}
	}
	if len(d.Inventors) == 0 {
		return &ValidationError{Field: "details.inventors", Reason: "at least one inventor is required"}
	}
	if d.ClaimCount < 1 {
		return &ValidationError{Field: "details.claim_count", Reason: "must be at least 1"}
	}
	return nil
}

// TrademarkDetails describes a mark and its Nice classes.
type TrademarkDetails struct {
	MarkText    string `json:"mark_text"`
	MarkType    string `json:"mark_type"` // word | figurative | combined
	NiceClasses []int  `json:"nice_classes"`
}

func (TrademarkDetails) Kind() Kind { return KindTrademark }

func (d TrademarkDetails) Validate() error {
	if strings.TrimSpace(d.MarkText) == "" {
		return &ValidationError{Field: "details.mark_text", Reason: "is required"}
	}
	switch d.MarkType {
	case "word", "figurative", "combined":
	default:
		return &ValidationError{Field: "details.mark_type", Reason: "must be word, figurative or combined"}
	}
	if len(d.NiceClasses) == 0 {
		return &ValidationError{Field: "details.nice_classes", Reason: "at least one class is required"}
	}
	for _, c := range d.NiceClasses {
		if c < 1 || c > 45 {
			return &ValidationError{Field: "details.nice_classes", Reason: fmt.Sprintf("class %d outside 1..45", c)}
		}
	}
	return nil
}

// CopyrightDetails describes a registered work.
type CopyrightDetails struct {
	WorkTitle    string   `json:"work_title"`
	WorkCategory string   `json:"work_category"`
	Authors      []string `json:"authors"`
	CreatedYear  int      `json:"created_year,omitempty"`
}

func (CopyrightDetails) Kind() Kind { return KindCopyright }

func (d CopyrightDetails) Validate() error {
	if strings.TrimSpace(d.WorkTitle) == "" {
		return &ValidationError{Field: "details.work_title", Reason: "is required"}
	}
	if strings.TrimSpace(d.WorkCategory) == "" {
		return &ValidationError{Field: "details.work_category", Reason: "is required"}
	}
	if len(d.Authors) == 0 {
		return &ValidationError{Field: "details.authors", Reason: "at least one author is required"}
	}
	return nil
}

// IndustrialDesignDetails describes a product design.
type IndustrialDesignDetails struct {
	ProductName   string   `json:"product_name"`
	LocarnoClass  string   `json:"locarno_class"`
	ViewCount     int      `json:"view_count"`
	DesignerNames []string `json:"designers,omitempty"`
}

func (IndustrialDesignDetails) Kind() Kind { return KindIndustrialDesign }

func (d IndustrialDesignDetails) Validate() error {
	if strings.TrimSpace(d.ProductName) == "" {
		return &ValidationError{Field: "details.product_name", Reason: "is required"}
	}
	if strings.TrimSpace(d.LocarnoClass) == "" {
		return &ValidationError{Field: "details.locarno_class", Reason: "is required"}
	}
	if d.ViewCount < 1 {
		return &ValidationError{Field: "details.view_count", Reason: "at least one view is required"}
	}
	return nil
}

// DetailRegistry maps each kind to a constructor for its details variant.
// It is built once at startup and read-only afterwards.
type DetailRegistry struct {
	builders map[Kind]func() Details
}

// NewDetailRegistry returns the registry of the four built-in kinds.
func NewDetailRegistry() *DetailRegistry {
	r := &DetailRegistry{builders: make(map[Kind]func() Details)}
	r.mustRegister(KindPatent, func() Details { return &PatentDetails{} })
	r.mustRegister(KindTrademark, func() Details { return &TrademarkDetails{} })
	r.mustRegister(KindCopyright, func() Details { return &CopyrightDetails{} })
	r.mustRegister(KindIndustrialDesign, func() Details { return &IndustrialDesignDetails{} })
	return r
}

// Register adds a kind. Registering a kind twice is an error.
func (r *DetailRegistry) Register(kind Kind, build func() Details) error {
	if _, dup := r.builders[kind]; dup {
		return fmt.Errorf("details for kind %q already registered", kind)
	}
	r.builders[kind] = build
	return nil
}

func (r *DetailRegistry) mustRegister(kind Kind, build func() Details) {
	if err := r.Register(kind, build); err != nil {
		panic(err)
	}
}

// Known reports whether kind has a registered variant.
func (r *DetailRegistry) Known(kind Kind) bool {
	_, ok := r.builders[kind]
	return ok
}

// Decode parses raw into the variant registered for kind and validates it.
// Unknown fields are rejected.
func (r *DetailRegistry) Decode(kind Kind, raw json.RawMessage) (Details, error) {
	build, ok := r.builders[kind]
	if !ok {
		return nil, &ValidationError{Field: "kind", Reason: fmt.Sprintf("unsupported submission kind %q", kind)}
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, &ValidationError{Field: "details", Reason: "is required"}
	}
	d := build()
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(d); err != nil {
		return nil, &ValidationError{Field: "details", Reason: err.Error()}
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}
