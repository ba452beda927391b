package workflow

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDetailRegistryDecode(t *testing.T) {
	r := NewDetailRegistry()

	d, err := r.Decode(KindPatent, json.RawMessage(`{"invention_title":"Heat pump","inventors":["R. Okafor"],"claim_count":12}`))
	if err != nil {
		t.Fatalf("decode patent: %v", err)
	}
	p, ok := d.(*PatentDetails)
	if !ok || p.ClaimCount != 12 {
		t.Fatalf("unexpected details: %#v", d)
	}

	cases := []struct {
		name  string
		kind  Kind
		raw   string
		field string
	}{
		{"unknown kind", Kind("plant_variety"), `{}`, "kind"},
		{"empty", KindCopyright, ``, "details"},
		{"unknown field", KindPatent, `{"invention_title":"x","inventors":["a"],"claim_count":1,"colour":"red"}`, "details"},
		{"nice class range", KindTrademark, `{"mark_text":"ACME","mark_type":"word","nice_classes":[46]}`, "details.nice_classes"},
		{"design views", KindIndustrialDesign, `{"product_name":"Chair","locarno_class":"06-01","view_count":0}`, "details.view_count"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.Decode(tc.kind, json.RawMessage(tc.raw))
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Field != tc.field {
				t.Fatalf("field = %q, want %q", ve.Field, tc.field)
			}
		})
	}
}

func TestDetailRegistryRejectsDuplicate(t *testing.T) {
	r := NewDetailRegistry()
	if err := r.Register(KindPatent, func() Details { return &PatentDetails{} }); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}

func TestCertificateNumber(t *testing.T) {
	if got := CertificateNumber("pat", 2026, 42); got != "PAT-2026-000042" {
		t.Fatalf("CertificateNumber = %q", got)
	}
	if got := CertificatePrefixFor(&SubmissionType{Kind: KindTrademark}); got != "TM" {
		t.Fatalf("default prefix = %q", got)
	}
	if got := CertificatePrefixFor(&SubmissionType{Kind: KindTrademark, CertificatePrefix: "TMX"}); got != "TMX" {
		t.Fatalf("configured prefix = %q", got)
	}
}
