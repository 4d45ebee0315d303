package game

import "time"

// Period is a calendar-aware interval. Days advance by calendar day in the
// decider's location, so a daily period always starts at local midnight.
type Period struct {
	Days    int `json:"days"`
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
}

func (p Period) fixed() time.Duration {
	return time.Duration(p.Hours)*time.Hour + time.Duration(p.Minutes)*time.Minute
}

// nominal is the period length ignoring DST.
func (p Period) nominal() time.Duration {
	return time.Duration(p.Days)*24*time.Hour + p.fixed()
}

func (p Period) valid() bool {
	return p.Days > 0 || p.fixed() > 0
}

// Periodic advances one round per elapsed period since the session started.
type Periodic struct {
	Period   Period
	Location *time.Location
}

func NewPeriodic(p Period, loc *time.Location) Periodic {
	if loc == nil {
		loc = time.UTC
	}
	return Periodic{Period: p, Location: loc}
}

func (d Periodic) Decide(in DecideInput) RoundDecision {
	if !d.Period.valid() {
		return RoundDecision{PendingTurns: pendingFor(in.Members, in.Turns, 0)}
	}
	origin := d.align(in.StartedAt)
	now := in.Now.In(d.loc())

	// Jump close to the answer, then step boundaries until the next one is
	// in the future. Calendar days vary in length, so the estimate may be off
	// by a step either way.
	index := 0
	if nominal := d.Period.nominal(); now.After(origin) {
		index = max(int(now.Sub(origin)/nominal)-1, 0)
	}
	for index > 0 && d.boundary(origin, index).After(now) {
		index--
	}
	for !d.boundary(origin, index+1).After(now) {
		index++
	}

	next := d.boundary(origin, index+1)
	return RoundDecision{
		RoundIndex:   index,
		PendingTurns: pendingFor(in.Members, in.Turns, index),
		CheckAgainAt: &next,
	}
}

func (d Periodic) loc() *time.Location {
	if d.Location == nil {
		return time.UTC
	}
	return d.Location
}

// align snaps t down to the start of the period unit it falls in: local
// midnight for day periods, the hour for hour periods, else the minute.
func (d Periodic) align(t time.Time) time.Time {
	t = t.In(d.loc())
	y, m, day := t.Date()
	switch {
	case d.Period.Days > 0:
		return startOfDay(y, m, day, d.loc())
	case d.Period.Hours > 0:
		return time.Date(y, m, day, t.Hour(), 0, 0, 0, d.loc())
	default:
		return time.Date(y, m, day, t.Hour(), t.Minute(), 0, 0, d.loc())
	}
}

// boundary is the start of round n. Each boundary is derived from origin
// rather than from its predecessor so a skipped midnight never shifts later
// rounds.
func (d Periodic) boundary(origin time.Time, n int) time.Time {
	fixed := time.Duration(n) * d.Period.fixed()
	if d.Period.Days == 0 {
		return origin.Add(fixed)
	}
	y, m, day := origin.Date()
	return startOfDay(y, m, day+n*d.Period.Days, d.loc()).Add(fixed)
}

// startOfDay returns the first instant of the given local date. Where a DST
// change skips midnight, time.Date lands on the previous day; the real start
// is the transition itself.
func startOfDay(y int, m time.Month, day int, loc *time.Location) time.Time {
	t := time.Date(y, m, day, 0, 0, 0, 0, loc)
	want := time.Date(y, m, day, 12, 0, 0, 0, loc)
	if t.Day() != want.Day() {
		_, end := t.ZoneBounds()
		return end
	}
	return t
}

// Synchronized advances once every member has a turn in the current round.
type Synchronized struct{}

func (Synchronized) Decide(in DecideInput) RoundDecision {
	members := make(map[string]struct{}, len(in.Members))
	for _, m := range in.Members {
		members[m] = struct{}{}
	}
	submitted := map[int]map[string]struct{}{}
	for _, t := range in.Turns {
		if _, ok := members[t.PlayerID]; !ok {
			continue
		}
		if submitted[t.RoundIndex] == nil {
			submitted[t.RoundIndex] = map[string]struct{}{}
		}
		submitted[t.RoundIndex][t.PlayerID] = struct{}{}
	}
	highest := -1
	for round, players := range submitted {
		if len(in.Members) > 0 && len(players) == len(in.Members) && round > highest {
			highest = round
		}
	}
	index := highest + 1
	return RoundDecision{
		RoundIndex:   index,
		PendingTurns: pendingFor(in.Members, in.Turns, index),
	}
}
