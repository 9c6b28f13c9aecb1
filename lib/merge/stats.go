package merge

import "github.com/gpaciente/psync/lib/record"

// Stats counts the verdicts of one collection.
type Stats struct {
	Added     int `json:"adicionados"`
	Updated   int `json:"atualizados"`
	Conflicts int `json:"conflito"`
	Unchanged int `json:"inalterados"`
	Errors    int `json:"erros"`
}

// count books a verdict.
func (s *Stats) count(v Verdict) {
	switch v {
	case VerdictInsert:
		s.Added++
	case VerdictOverwrite:
		s.Updated++
	case VerdictConflict:
		s.Conflicts++
	default:
		s.Unchanged++
	}
}

// Add returns the sum of s and o.
func (s Stats) Add(o Stats) Stats {
	return Stats{
		Added:     s.Added + o.Added,
		Updated:   s.Updated + o.Updated,
		Conflicts: s.Conflicts + o.Conflicts,
		Unchanged: s.Unchanged + o.Unchanged,
		Errors:    s.Errors + o.Errors,
	}
}

// Changed reports whether the merge wrote anything.
func (s Stats) Changed() bool {
	return s.Added+s.Updated+s.Conflicts > 0
}

// Result is the outcome of merging a full snapshot.
type Result struct {
	Patients     Stats
	Appointments Stats
}

// Of returns the stats of one collection.
func (r *Result) Of(kind record.Kind) Stats {
	if kind == record.KindAppointment {
		return r.Appointments
	}
	return r.Patients
}

// Total sums both collections.
func (r *Result) Total() Stats {
	return r.Patients.Add(r.Appointments)
}

// StatsMap flattens the result into the keys used by the merge endpoint.
func (r *Result) StatsMap() map[string]int {
	m := make(map[string]int, 13)
	put := func(prefix string, s Stats) {
		m[prefix+"_adicionados"] = s.Added
		m[prefix+"_atualizados"] = s.Updated
		m[prefix+"_conflito"] = s.Conflicts
		m[prefix+"_inalterados"] = s.Unchanged
		m[prefix+"_erros"] = s.Errors
	}
	for _, kind := range record.Kinds {
		put(kind.Collection(), r.Of(kind))
	}

	total := r.Total()
	m["added"] = total.Added
	m["updated"] = total.Updated
	m["conflicts"] = total.Conflicts
	return m
}
