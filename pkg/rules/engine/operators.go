package engine

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"revcycle-hq/callisto/pkg/rules"
)

// evalOperator applies a leaf condition operator to the resolved field
// value. found reports whether the field resolved at all; operators treat
// absence as a valid input rather than an error. now is the execution
// timestamp all relative-date operators measure against.
func evalOperator(op rules.Operator, actual any, found bool, cond *rules.ConditionNode, now time.Time) (bool, error) {
	switch op {
	case rules.OpIsNull:
		return !found || actual == nil, nil

	case rules.OpIsNotNull:
		return found && actual != nil, nil

	case rules.OpEquals:
		if !found {
			return false, nil
		}
		return looseEqual(actual, cond.Value, cond.CaseInsensitive), nil

	case rules.OpNotEquals:
		if !found {
			return true, nil
		}
		return !looseEqual(actual, cond.Value, cond.CaseInsensitive), nil

	case rules.OpGreaterThan, rules.OpLessThan, rules.OpGreaterThanOrEquals, rules.OpLessThanOrEquals:
		if !found {
			return false, nil
		}
		return evalOrdering(op, actual, cond.Value)

	case rules.OpContains:
		if !found {
			return false, nil
		}
		return evalContains(actual, cond.Value, cond.CaseInsensitive)

	case rules.OpNotContains:
		if !found {
			return true, nil
		}
		matched, err := evalContains(actual, cond.Value, cond.CaseInsensitive)
		return !matched, err

	case rules.OpStartsWith:
		if !found {
			return false, nil
		}
		return evalAffix(actual, cond.Value, cond.CaseInsensitive, strings.HasPrefix)

	case rules.OpEndsWith:
		if !found {
			return false, nil
		}
		return evalAffix(actual, cond.Value, cond.CaseInsensitive, strings.HasSuffix)

	case rules.OpInList:
		if !found {
			return false, nil
		}
		return evalInList(actual, cond.Value, cond.CaseInsensitive)

	case rules.OpNotInList:
		if !found {
			return true, nil
		}
		in, err := evalInList(actual, cond.Value, cond.CaseInsensitive)
		return !in, err

	case rules.OpBetween:
		if !found {
			return false, nil
		}
		return evalBetween(actual, cond.Value)

	case rules.OpRegex:
		if !found {
			return false, nil
		}
		return evalRegex(actual, cond.Value)

	case rules.OpDaysSinceGreaterThan, rules.OpDaysSinceLessThan:
		if !found {
			return false, nil
		}
		return evalDaysSince(op, actual, cond.Value, now, calendarDaysBetween)

	case rules.OpBusinessDaysSinceGreaterThan, rules.OpBusinessDaysSinceLessThan:
		if !found {
			return false, nil
		}
		return evalDaysSince(op, actual, cond.Value, now, businessDaysBetween)

	default:
		return false, fmt.Errorf("unknown operator %q", op)
	}
}

// looseEqual performs type-aware equality: numeric values compare by value
// across int/float representations, strings optionally fold case, and
// everything else falls back to deep equality.
func looseEqual(a, b any, caseInsensitive bool) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}

	if an, aok := toFloat(a); aok {
		if bn, bok := toFloat(b); bok {
			return an == bn
		}
	}

	if as, aok := a.(string); aok {
		if bs, bok := b.(string); bok {
			if caseInsensitive {
				return strings.EqualFold(as, bs)
			}
			return as == bs
		}
	}

	return reflect.DeepEqual(a, b)
}

// evalOrdering compares two values with <, >, <=, >=. Numbers compare
// numerically, dates chronologically, strings lexically; a pair that fits
// none of those is a type mismatch.
func evalOrdering(op rules.Operator, actual, expected any) (bool, error) {
	var cmp int

	switch {
	case isNumeric(actual) && isNumeric(expected):
		an, _ := toFloat(actual)
		en, _ := toFloat(expected)
		switch {
		case an < en:
			cmp = -1
		case an > en:
			cmp = 1
		}
	default:
		at, aok := toTime(actual)
		et, eok := toTime(expected)
		if aok && eok {
			switch {
			case at.Before(et):
				cmp = -1
			case at.After(et):
				cmp = 1
			}
			break
		}

		as, aok2 := actual.(string)
		es, eok2 := expected.(string)
		if !aok2 || !eok2 {
			return false, fmt.Errorf("cannot order %T against %T", actual, expected)
		}
		cmp = strings.Compare(as, es)
	}

	switch op {
	case rules.OpGreaterThan:
		return cmp > 0, nil
	case rules.OpLessThan:
		return cmp < 0, nil
	case rules.OpGreaterThanOrEquals:
		return cmp >= 0, nil
	case rules.OpLessThanOrEquals:
		return cmp <= 0, nil
	}
	return false, fmt.Errorf("not an ordering operator: %q", op)
}

// evalContains tests substring containment when the resolved value is a
// string, and list membership when it is a list.
func evalContains(actual, expected any, caseInsensitive bool) (bool, error) {
	if list, ok := toList(actual); ok {
		for _, elem := range list {
			if looseEqual(elem, expected, caseInsensitive) {
				return true, nil
			}
		}
		return false, nil
	}

	as, es, err := stringPair(actual, expected, "contains")
	if err != nil {
		return false, err
	}
	if caseInsensitive {
		return strings.Contains(strings.ToLower(as), strings.ToLower(es)), nil
	}
	return strings.Contains(as, es), nil
}

// evalAffix tests prefix/suffix matching on strings.
func evalAffix(actual, expected any, caseInsensitive bool, match func(string, string) bool) (bool, error) {
	as, es, err := stringPair(actual, expected, "affix")
	if err != nil {
		return false, err
	}
	if caseInsensitive {
		return match(strings.ToLower(as), strings.ToLower(es)), nil
	}
	return match(as, es), nil
}

// evalInList tests membership of the resolved value in the expected list.
func evalInList(actual, expected any, caseInsensitive bool) (bool, error) {
	list, ok := toList(expected)
	if !ok {
		return false, fmt.Errorf("in_list requires a list value, got %T", expected)
	}
	for _, elem := range list {
		if looseEqual(actual, elem, caseInsensitive) {
			return true, nil
		}
	}
	return false, nil
}

// evalBetween tests inclusive {min, max} range membership for numeric or
// date values.
func evalBetween(actual, expected any) (bool, error) {
	min, max, ok := rules.RangeValue(expected)
	if !ok {
		return false, fmt.Errorf("between requires a {min, max} value, got %T", expected)
	}

	if an, aok := toFloat(actual); aok {
		minN, minOK := toFloat(min)
		maxN, maxOK := toFloat(max)
		if !minOK || !maxOK {
			return false, fmt.Errorf("between bounds are not numeric: min=%T max=%T", min, max)
		}
		return an >= minN && an <= maxN, nil
	}

	at, aok := toTime(actual)
	minT, minOK := toTime(min)
	maxT, maxOK := toTime(max)
	if aok && minOK && maxOK {
		return !at.Before(minT) && !at.After(maxT), nil
	}

	return false, fmt.Errorf("between requires numeric or date values, got %T", actual)
}

// evalRegex compiles the expected pattern and tests the string form of the
// resolved value. An invalid pattern is a condition evaluation error, not a
// crash; the caller annotates the trace and resolves to passed=false.
func evalRegex(actual, expected any) (bool, error) {
	pattern, ok := expected.(string)
	if !ok {
		return false, fmt.Errorf("regex requires a string pattern, got %T", expected)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, fmt.Errorf("invalid regex pattern %q: %w", pattern, err)
	}
	return re.MatchString(stringify(actual)), nil
}

// evalDaysSince computes elapsed days between the resolved date and the
// execution timestamp using the supplied day counter, then compares against
// the numeric threshold.
func evalDaysSince(op rules.Operator, actual, expected any, now time.Time, countDays func(from, to time.Time) int) (bool, error) {
	date, ok := toTime(actual)
	if !ok {
		return false, fmt.Errorf("days_since requires a date value, got %T", actual)
	}
	threshold, ok := toFloat(expected)
	if !ok {
		return false, fmt.Errorf("days_since requires a numeric threshold, got %T", expected)
	}

	elapsed := float64(countDays(date, now))

	switch op {
	case rules.OpDaysSinceGreaterThan, rules.OpBusinessDaysSinceGreaterThan:
		return elapsed > threshold, nil
	case rules.OpDaysSinceLessThan, rules.OpBusinessDaysSinceLessThan:
		return elapsed < threshold, nil
	}
	return false, fmt.Errorf("not a days_since operator: %q", op)
}

// calendarDaysBetween counts whole calendar days from the date of from to
// the date of to. Same-day and future dates count as zero.
func calendarDaysBetween(from, to time.Time) int {
	fromD := dateOf(from)
	toD := dateOf(to)
	if !fromD.Before(toD) {
		return 0
	}
	return int(toD.Sub(fromD).Hours() / 24)
}

// businessDaysBetween counts elapsed weekdays from the date of from to the
// date of to, excluding Saturday and Sunday. No holiday calendar.
func businessDaysBetween(from, to time.Time) int {
	fromD := dateOf(from)
	toD := dateOf(to)
	if !fromD.Before(toD) {
		return 0
	}

	total := int(toD.Sub(fromD).Hours() / 24)

	// Any span of 7 consecutive days contains exactly 5 weekdays, so only
	// the remainder needs a walk.
	weeks := total / 7
	count := weeks * 5
	for d := fromD.AddDate(0, 0, weeks*7+1); !d.After(toD); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			count++
		}
	}
	return count
}

// dateOf truncates a timestamp to its UTC calendar date.
func dateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// toFloat converts a numeric value to float64.
func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int8:
		return float64(val), true
	case int16:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint8:
		return float64(val), true
	case uint16:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	default:
		return 0, false
	}
}

func isNumeric(v any) bool {
	_, ok := toFloat(v)
	return ok
}

// timeLayouts are the date encodings rule documents and entity records use.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// toTime converts a value to a timestamp. Strings are parsed against the
// known layouts; time.Time values pass through.
func toTime(v any) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, true
	case *time.Time:
		if val == nil {
			return time.Time{}, false
		}
		return *val, true
	case string:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, val); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// toList normalizes list-shaped values. Typed string slices appear in rule
// documents decoded from YAML.
func toList(v any) ([]any, bool) {
	switch val := v.(type) {
	case []any:
		return val, true
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}

// stringify renders a value for string-form matching (regex).
func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// stringPair coerces both sides of a string operator, erroring on
// non-string operands so the mismatch surfaces in the trace.
func stringPair(actual, expected any, opName string) (string, string, error) {
	as, ok := actual.(string)
	if !ok {
		return "", "", fmt.Errorf("%s requires a string field value, got %T", opName, actual)
	}
	es, ok := expected.(string)
	if !ok {
		return "", "", fmt.Errorf("%s requires a string comparison value, got %T", opName, expected)
	}
	return as, es, nil
}
