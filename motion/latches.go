// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package motion

// Rule names the detection rule that fired.
type Rule string

const (
	// Dual-threshold rules, satisfied by a single sample.
	RuleStrongBump Rule = "strong-bump"
	RuleStrongTap  Rule = "strong-tap"

	// Sequential rules, satisfied by a latch primed on an earlier sample and
	// the complementary metric on the current one.
	RuleSequentialMagnitude       Rule = "sequential-magnitude"
	RuleSequentialStrongMagnitude Rule = "sequential-strong-magnitude"
	RuleSequentialJerk            Rule = "sequential-jerk"
	RuleSequentialStrongJerk      Rule = "sequential-strong-jerk"
)

// Latches are one-way priming flags. Once set within a session a latch stays
// set until the session is restarted or ended.
type Latches struct {
	Magnitude       bool `yaml:"magnitude"`
	StrongMagnitude bool `yaml:"strong-magnitude"`
	Jerk            bool `yaml:"jerk"`
	StrongJerk      bool `yaml:"strong-jerk"`
}

// Evaluate checks a sample's magnitude and jerk against the dual-threshold
// rules and against the latches primed by earlier samples. It does not update
// the latches.
func (l Latches) Evaluate(magnitude, jerk float64) (Rule, bool) {
	switch {
	case magnitude >= StrongMagnitudeThreshold && jerk >= JerkThreshold:
		return RuleStrongBump, true
	case magnitude >= MagnitudeThreshold && jerk >= StrongJerkThreshold:
		return RuleStrongTap, true
	}

	switch {
	case l.Magnitude && jerk >= JerkThreshold:
		return RuleSequentialMagnitude, true
	case l.StrongMagnitude && jerk >= JerkThreshold:
		return RuleSequentialStrongMagnitude, true
	case l.Jerk && magnitude >= StrongMagnitudeThreshold:
		return RuleSequentialJerk, true
	case l.StrongJerk && magnitude >= MagnitudeThreshold:
		return RuleSequentialStrongJerk, true
	}

	return "", false
}

// Prime sets every latch whose threshold the sample crosses.
func (l *Latches) Prime(magnitude, jerk float64) {
	l.Magnitude = l.Magnitude || magnitude >= MagnitudeThreshold
	l.StrongMagnitude = l.StrongMagnitude ||
		magnitude >= StrongMagnitudeThreshold
	l.Jerk = l.Jerk || jerk >= JerkThreshold
	l.StrongJerk = l.StrongJerk || jerk >= StrongJerkThreshold
}
