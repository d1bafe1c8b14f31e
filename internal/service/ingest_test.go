package service

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"council/internal/ledger"
	"council/internal/models"
	"council/internal/reason"
	"council/internal/registry"
)

// fullBundle builds a valid input for every registry category.
func fullBundle(expertID, gameID string) BundleRequest {
	reg := registry.Default()
	req := BundleRequest{ExpertID: expertID, GameID: gameID, State: BundleState{State: StateDone}}
	yes := true
	for _, cat := range reg.All() {
		in := AssertionInput{
			Category:   cat.Key,
			PredType:   cat.PredType,
			Confidence: 0.7,
			StakeUnits: decimal.NewFromInt(1),
			OddsFormat: ledger.OddsDecimal,
			OddsValue:  "2.0",
		}
		switch cat.PredType {
		case models.PredTypeBinary:
			in.ValueBool = &yes
		case models.PredTypeEnum:
			v := cat.EnumValues[0]
			in.ValueEnum = &v
		case models.PredTypeNumeric:
			v := 10.0
			in.ValueNum = &v
		}
		req.Assertions = append(req.Assertions, in)
	}
	return req
}

func newIngest() *IngestService {
	return &IngestService{Registry: registry.Default()}
}

func TestValidateAcceptsFullBundle(t *testing.T) {
	req := fullBundle("e1", "g1")
	assertions, err := newIngest().validate(req)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(assertions) != registry.Default().Count() {
		t.Fatalf("got %d assertions, want %d", len(assertions), registry.Default().Count())
	}
	for _, as := range assertions {
		if as.ExpertID != "e1" || as.GameID != "g1" || as.Subject == "" {
			t.Fatalf("assertion not filled in: %+v", as)
		}
	}
}

func TestValidateRejectsWholeBundle(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*BundleRequest)
		want   string
	}{
		{"short bundle", func(r *BundleRequest) {
			r.Assertions = r.Assertions[:10]
		}, "registry defines"},
		{"unknown category", func(r *BundleRequest) {
			r.Assertions[0].Category = "coin_flip"
		}, "unknown category"},
		{"duplicate category", func(r *BundleRequest) {
			r.Assertions[1].Category = r.Assertions[0].Category
		}, "duplicate category"},
		{"pred type mismatch", func(r *BundleRequest) {
			r.Assertions[0].PredType = models.PredTypeEnum
		}, ""},
		{"confidence out of range", func(r *BundleRequest) {
			r.Assertions[0].Confidence = 1.2
		}, "confidence"},
		{"negative stake", func(r *BundleRequest) {
			r.Assertions[0].StakeUnits = decimal.NewFromInt(-1)
		}, "negative stake"},
		{"bad odds", func(r *BundleRequest) {
			r.Assertions[0].OddsValue = "garbage"
		}, "odds"},
	}
	for _, c := range cases {
		req := fullBundle("e1", "g1")
		c.mutate(&req)
		_, err := newIngest().validate(req)
		if !reason.IsCode(err, reason.CodeValidationFailed) {
			t.Fatalf("%s: err = %v, want validation failure", c.name, err)
		}
		if c.want != "" && !strings.Contains(err.Error(), c.want) {
			t.Fatalf("%s: message %q missing %q", c.name, err.Error(), c.want)
		}
	}
}

func TestValidateZeroStakeSkipsOddsCheck(t *testing.T) {
	req := fullBundle("e1", "g1")
	req.Assertions[0].StakeUnits = decimal.Zero
	req.Assertions[0].OddsValue = "garbage"
	if _, err := newIngest().validate(req); err != nil {
		t.Fatalf("zero-stake odds rejected: %v", err)
	}
}

func TestBundleWriteErrorMapsDuplicates(t *testing.T) {
	err := bundleWriteError(gorm.ErrDuplicatedKey, "e1", "g1")
	if !reason.IsCode(err, reason.CodeValidationFailed) {
		t.Fatalf("duplicate key: err = %v, want validation failure", err)
	}
	if !strings.Contains(err.Error(), "already submitted") {
		t.Fatalf("message %q does not name the duplicate", err.Error())
	}

	wrapped := fmt.Errorf("insert assertions: %w", gorm.ErrDuplicatedKey)
	if !reason.IsCode(bundleWriteError(wrapped, "e1", "g1"), reason.CodeValidationFailed) {
		t.Fatalf("wrapped duplicate not classified")
	}

	plain := errors.New("connection reset")
	if got := bundleWriteError(plain, "e1", "g1"); got != plain {
		t.Fatalf("plain error rewritten: %v", got)
	}
}
