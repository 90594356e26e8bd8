package topology

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/seu-repo/energy-core/internal/domain"
	"github.com/seu-repo/energy-core/internal/ports"
	"github.com/seu-repo/energy-core/pkg/config"
)

// MatchRule names the rule that produced a device's bindings
type MatchRule string

const (
	RuleLegacy MatchRule = "legacy"
	RulePrefix MatchRule = "prefix"
	RuleNone   MatchRule = "none"
)

// MatchResult is the outcome of matching one device
type MatchResult struct {
	DeviceID string               `json:"device_id"`
	Rule     MatchRule            `json:"rule"`
	Prefix   string               `json:"prefix,omitempty"`
	Bindings domain.PointBindings `json:"bindings"`
}

// Name keywords per usage. Power factor is tested before power because its
// keywords contain the power keywords. Tokens only match as whole words, so
// "pf" hits "AHU_PF" but not "upfront" and "cos" does not hit "cost".
var usageKeywords = []struct {
	usage    domain.PointUsage
	keywords []string
	tokens   []string
}{
	{domain.UsagePowerFactor, []string{"功率因数", "power factor"}, []string{"cos", "pf"}},
	{domain.UsagePower, []string{"功率", "有功功率", "power", "输出功率", "负载率"}, nil},
	{domain.UsageCurrent, []string{"电流", "current"}, nil},
	{domain.UsageEnergy, []string{"电能", "电量", "累计电量", "energy", "kwh"}, nil},
	{domain.UsageVoltage, []string{"电压", "voltage"}, nil},
}

var codeHead = regexp.MustCompile(`^([A-Z]+)`)

// Matcher binds measurement points to devices, first through the legacy wiring
// table and then through the {area}_{PREFIX}_AI_ naming convention
type Matcher struct {
	legacy       map[string]config.LegacyPointMapping
	typePrefixes map[string]string
	log          *zap.Logger
}

func NewMatcher(cfg config.MatcherConfig, log *zap.Logger) *Matcher {
	m := &Matcher{
		legacy:       make(map[string]config.LegacyPointMapping, len(cfg.Legacy)),
		typePrefixes: make(map[string]string, len(cfg.TypePrefixes)),
		log:          log,
	}
	for _, l := range cfg.Legacy {
		m.legacy[l.DeviceCode] = l
	}
	// viper lowercases map keys
	for k, v := range cfg.TypePrefixes {
		m.typePrefixes[strings.ToLower(k)] = v
	}
	return m
}

// UsageOf classifies a point by the keywords in its name
func UsageOf(name string) (domain.PointUsage, bool) {
	lower := strings.ToLower(name)
	for _, uk := range usageKeywords {
		for _, kw := range uk.keywords {
			if strings.Contains(lower, kw) {
				return uk.usage, true
			}
		}
		for _, tok := range uk.tokens {
			if containsToken(lower, tok) {
				return uk.usage, true
			}
		}
	}
	return "", false
}

// containsToken reports whether tok occurs in s with no ASCII letter or digit
// on either side
func containsToken(s, tok string) bool {
	for i := 0; i <= len(s)-len(tok); {
		j := strings.Index(s[i:], tok)
		if j < 0 {
			return false
		}
		start, end := i+j, i+j+len(tok)
		if (start == 0 || !isWordByte(s[start-1])) && (end == len(s) || !isWordByte(s[end])) {
			return true
		}
		i = start + 1
	}
	return false
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

// PointPrefix derives the point code prefix of a device, or "" when the area is
// unknown or neither the code nor the device type gives a head segment
func (m *Matcher) PointPrefix(deviceCode, deviceType, areaCode string) string {
	if areaCode == "" {
		return ""
	}
	if head := codeHead.FindString(strings.ToUpper(deviceCode)); head != "" {
		return areaCode + "_" + head + "_AI_"
	}
	if p, ok := m.typePrefixes[strings.ToLower(deviceType)]; ok && p != "" {
		return areaCode + "_" + p + "_AI_"
	}
	return ""
}

// Match resolves the bindings of dev without writing them. areaCode is the
// effective area (the device's own, else its panel's).
func (m *Matcher) Match(ctx context.Context, points ports.PointRepository, dev *domain.PowerDevice, areaCode string) (MatchResult, error) {
	res := MatchResult{DeviceID: dev.ID, Rule: RuleNone, Bindings: domain.PointBindings{}}

	if l, ok := m.legacy[dev.Code]; ok {
		bindings, err := m.matchLegacy(ctx, points, l)
		if err != nil {
			return res, err
		}
		if len(bindings) > 0 {
			res.Rule, res.Prefix, res.Bindings = RuleLegacy, l.Prefix, bindings
			return res, nil
		}
	}

	prefix := m.PointPrefix(dev.Code, dev.DeviceType, areaCode)
	if prefix == "" {
		return res, nil
	}
	candidates, err := points.ListByPrefix(ctx, prefix)
	if err != nil {
		return res, err
	}
	// candidates are ordered by code, so the first hit per usage is the lowest code
	for _, p := range candidates {
		if p.EnergyDeviceID != nil && *p.EnergyDeviceID != dev.ID {
			continue
		}
		usage, ok := UsageOf(p.Name)
		if !ok {
			continue
		}
		if _, taken := res.Bindings[usage]; !taken {
			res.Bindings[usage] = p.ID
		}
	}
	if len(res.Bindings) > 0 {
		res.Rule, res.Prefix = RulePrefix, prefix
	}
	return res, nil
}

func (m *Matcher) matchLegacy(ctx context.Context, points ports.PointRepository, l config.LegacyPointMapping) (domain.PointBindings, error) {
	suffixes := map[domain.PointUsage]string{
		domain.UsagePower:       l.Power,
		domain.UsageCurrent:     l.Current,
		domain.UsageEnergy:      l.Energy,
		domain.UsageVoltage:     l.Voltage,
		domain.UsagePowerFactor: l.PowerFactor,
	}
	byCode := map[string]domain.PointUsage{}
	codes := make([]string, 0, len(suffixes))
	for usage, suffix := range suffixes {
		if suffix == "" {
			continue
		}
		code := l.Prefix + suffix
		byCode[code] = usage
		codes = append(codes, code)
	}
	found, err := points.GetByCodes(ctx, codes)
	if err != nil {
		return nil, err
	}
	bindings := domain.PointBindings{}
	for _, p := range found {
		bindings[byCode[p.Code]] = p.ID
	}
	return bindings, nil
}
