package strategyconfig

import (
	"fmt"
	"strings"
	"time"

	"github.com/wonny/optrader/internal/contracts"
	"github.com/wonny/optrader/internal/selection"
)

// ValidationError 검증 실패 (프로그램 중단)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Warning 권장 위반 (경고만)
type Warning struct {
	Code    string
	Message string
}

// Validate checks all required constraints
// 실패 시 error 반환 (프로그램 중단)
func Validate(cfg *Config) error {
	if len(cfg.Strategies) == 0 {
		return ValidationError{"strategies", "at least one strategy required"}
	}

	for i := range cfg.Strategies {
		if err := validateStrategy(fmt.Sprintf("strategies[%d]", i), &cfg.Strategies[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateStrategy(prefix string, s *Strategy) error {
	field := func(name string) string { return prefix + "." + name }

	s.Symbol = strings.TrimSpace(s.Symbol)
	if s.Symbol == "" {
		return ValidationError{field("symbol"), "required"}
	}
	if s.Exchange == "" {
		s.Exchange = contracts.ExchangeNSE
	}
	if s.ExpiryDate.IsZero() {
		return ValidationError{field("expiry_date"), "required"}
	}
	if !s.Direction.Valid() {
		return ValidationError{field("direction"), "must be LONG or SHORT"}
	}
	if s.OptType == "" {
		s.OptType = selection.OptionBoth
	}
	if !s.OptType.Valid() {
		return ValidationError{field("opt_type"), "must be CALL, PUT or BOTH"}
	}

	// === Sizing ===
	if s.Lots <= 0 {
		return ValidationError{field("lots"), "must be > 0"}
	}
	if s.NumBatches == 0 {
		s.NumBatches = 1
	}
	if s.NumBatches < 1 || s.NumBatches > s.Lots {
		return ValidationError{field("num_batches"), fmt.Sprintf("must be in [1, lots=%d]", s.Lots)}
	}
	if s.EntryInterval < 0 {
		return ValidationError{field("entry_interval"), "must be >= 0"}
	}
	if s.EndInterval < 0 {
		return ValidationError{field("end_interval"), "must be >= 0"}
	}

	// === Risk ===
	if s.StopLoss <= 0 || s.StopLoss >= 100 {
		return ValidationError{field("stop_loss"), "must be in (0, 100)"}
	}

	// === Window ===
	if s.StartTime.Compare(s.EndTime) >= 0 {
		return ValidationError{field("start_time"), "must be before end_time"}
	}

	// === Strike rule ===
	if s.ByPremium() {
		wantsCall := s.OptType == selection.OptionCall || s.OptType == selection.OptionBoth
		wantsPut := s.OptType == selection.OptionPut || s.OptType == selection.OptionBoth
		if wantsCall && s.CallPremium <= 0 {
			return ValidationError{field("call_premium"), "must be > 0 when selecting calls by premium"}
		}
		if wantsPut && s.PutPremium <= 0 {
			return ValidationError{field("put_premium"), "must be > 0 when selecting puts by premium"}
		}
		return nil
	}

	if s.StrikeDiff <= 0 {
		return ValidationError{field("strike_diff"), "must be > 0"}
	}
	if s.StrikeDist < 0 {
		return ValidationError{field("strike_dist"), "must be >= 0"}
	}
	return nil
}

// Warn checks recommended constraints (non-fatal)
func Warn(cfg *Config, now time.Time, loc *time.Location) []Warning {
	var warnings []Warning

	for _, s := range cfg.Strategies {
		// 만기일 지난 계약
		y, m, d := now.In(loc).Date()
		today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		ey, em, ed := s.ExpiryDate.Date()
		if time.Date(ey, em, ed, 0, 0, 0, 0, time.UTC).Before(today) {
			warnings = append(warnings, Warning{
				Code:    "EXPIRED",
				Message: fmt.Sprintf("%s: expiry %s is in the past", s.Symbol, s.ExpiryDate.Format("2006-01-02")),
			})
		}

		// 마감 이후로 밀리는 배치
		last := s.EndTime.Add(time.Duration(s.EndInterval*(s.NumBatches-1)) * time.Minute)
		if last.Compare(contracts.MarketClose) > 0 {
			warnings = append(warnings, Warning{
				Code:    "END_CLAMPED",
				Message: fmt.Sprintf("%s: batch end times are clamped to %s", s.Symbol, contracts.MarketClose),
			})
		}

		if s.Direction == contracts.DirectionShort && !s.TrailSL {
			warnings = append(warnings, Warning{
				Code:    "FIXED_STOP_SHORT",
				Message: fmt.Sprintf("%s: short options without a trailing stop", s.Symbol),
			})
		}
	}

	return warnings
}
