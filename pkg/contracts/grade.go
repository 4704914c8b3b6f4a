// Package contracts defines the shared value objects of the Sanad
// evidence-trust grading engine: grades, evidence items, transmission
// nodes, defects, grading results, and calc propagation records.
//
// Every type here is a tenant-scoped immutable snapshot. The engine never
// mutates a contract in place; re-grading produces a fresh result that
// supersedes the previous one.
package contracts

import "fmt"

// SanadGrade is the ordinal trust grade assigned to a claim or
// calculation. A is the highest quality, D the lowest. The total order is
// A > B > C > D.
type SanadGrade string

const (
	GradeA SanadGrade = "A"
	GradeB SanadGrade = "B"
	GradeC SanadGrade = "C"
	GradeD SanadGrade = "D"
)

// gradeRank maps each grade to its index in the quality order.
// Lower rank = better grade.
var gradeRank = map[SanadGrade]int{
	GradeA: 0,
	GradeB: 1,
	GradeC: 2,
	GradeD: 3,
}

// AllGrades lists the grades from best to worst.
var AllGrades = []SanadGrade{GradeA, GradeB, GradeC, GradeD}

// ParseGrade validates a grade string. Unknown grades are a fail-closed
// input error, never silently defaulted.
func ParseGrade(s string) (SanadGrade, error) {
	g := SanadGrade(s)
	if _, ok := gradeRank[g]; !ok {
		return "", &UnknownCodeError{Kind: "grade", Code: s}
	}
	return g, nil
}

// Rank returns the grade's position in the quality order (A=0 … D=3).
// Panics on a grade that did not come through ParseGrade or the
// constants above; such a value is a programming error, not input.
func (g SanadGrade) Rank() int {
	r, ok := gradeRank[g]
	if !ok {
		panic(fmt.Sprintf("contracts: invalid SanadGrade %q", string(g)))
	}
	return r
}

// Valid reports whether g is one of the four defined grades.
func (g SanadGrade) Valid() bool {
	_, ok := gradeRank[g]
	return ok
}

// Better reports whether g is strictly higher quality than other.
func (g SanadGrade) Better(other SanadGrade) bool {
	return g.Rank() < other.Rank()
}

// Worse reports whether g is strictly lower quality than other.
func (g SanadGrade) Worse(other SanadGrade) bool {
	return g.Rank() > other.Rank()
}

// Downgraded returns the grade one level worse than g. D stays D.
func (g SanadGrade) Downgraded() SanadGrade {
	r := g.Rank()
	if r >= len(AllGrades)-1 {
		return GradeD
	}
	return AllGrades[r+1]
}

// Raised returns the grade one level better than g. A stays A.
func (g SanadGrade) Raised() SanadGrade {
	r := g.Rank()
	if r == 0 {
		return GradeA
	}
	return AllGrades[r-1]
}

// CapAt returns the worse of g and ceiling. A cap can only pull a grade
// down, never up.
func (g SanadGrade) CapAt(ceiling SanadGrade) SanadGrade {
	if g.Rank() >= ceiling.Rank() {
		return g
	}
	return ceiling
}

// MinGrade returns the worst grade present in grades. The slice must be
// non-empty; grading an empty input set is a fail-closed condition that
// callers surface before reaching this point.
func MinGrade(grades []SanadGrade) (SanadGrade, error) {
	if len(grades) == 0 {
		return "", &EmptyEvidenceError{Reason: "min_grade over empty grade list"}
	}
	worst := grades[0]
	if !worst.Valid() {
		return "", &UnknownCodeError{Kind: "grade", Code: string(worst)}
	}
	for _, g := range grades[1:] {
		if !g.Valid() {
			return "", &UnknownCodeError{Kind: "grade", Code: string(g)}
		}
		if g.Rank() > worst.Rank() {
			worst = g
		}
	}
	return worst, nil
}

// MaxGrade returns the best grade present in grades. Same contract as
// MinGrade.
func MaxGrade(grades []SanadGrade) (SanadGrade, error) {
	if len(grades) == 0 {
		return "", &EmptyEvidenceError{Reason: "max_grade over empty grade list"}
	}
	best := grades[0]
	if !best.Valid() {
		return "", &UnknownCodeError{Kind: "grade", Code: string(best)}
	}
	for _, g := range grades[1:] {
		if !g.Valid() {
			return "", &UnknownCodeError{Kind: "grade", Code: string(g)}
		}
		if g.Rank() < best.Rank() {
			best = g
		}
	}
	return best, nil
}
