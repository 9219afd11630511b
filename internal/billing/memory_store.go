package billing

import (
	"context"
	"sync"
	"time"

	"github.com/mediplex/mediplex/internal/syncutil"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu        sync.RWMutex
	plans     map[string]*Plan          // id -> plan
	planNames map[string]string         // name -> id
	limits    map[string]*FeatureLimit  // planID + "\x00" + key
	subs      map[string]*Subscription  // orgID -> subscription
	subsByID  map[string]string         // subID -> orgID
	counters  map[string]*UsageCounter  // orgID + "\x00" + key

	// counterLocks serializes increments per counter key so concurrent
	// increments never lose updates even while holding mu briefly.
	counterLocks syncutil.ShardedMutex

	// expireOrg mirrors trial expiry onto the organization store,
	// matching what the SQL implementation does in one transaction.
	expireOrg func(orgID string)
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		plans:     make(map[string]*Plan),
		planNames: make(map[string]string),
		limits:    make(map[string]*FeatureLimit),
		subs:      make(map[string]*Subscription),
		subsByID:  make(map[string]string),
		counters:  make(map[string]*UsageCounter),
	}
}

func limitKey(planID, featureKey string) string { return planID + "\x00" + featureKey }
func counterKey(orgID, featureKey string) string { return orgID + "\x00" + featureKey }

func (s *MemoryStore) SeedCatalog(_ context.Context, plans []*Plan, limits []*FeatureLimit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range plans {
		cp := *p
		s.plans[p.ID] = &cp
		s.planNames[p.Name] = p.ID
	}
	for _, l := range limits {
		cp := *l
		s.limits[limitKey(l.PlanID, l.FeatureKey)] = &cp
	}
	return nil
}

func (s *MemoryStore) GetPlan(_ context.Context, id string) (*Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.plans[id]
	if !ok {
		return nil, ErrPlanNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) GetPlanByName(_ context.Context, name string) (*Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.planNames[name]
	if !ok {
		return nil, ErrPlanNotFound
	}
	cp := *s.plans[id]
	return &cp, nil
}

func (s *MemoryStore) ListPlans(_ context.Context) ([]*Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Plan, 0, len(s.plans))
	for _, p := range s.plans {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) GetLimit(_ context.Context, planID, featureKey string) (*FeatureLimit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.limits[limitKey(planID, featureKey)]
	if !ok {
		return nil, ErrLimitNotFound
	}
	cp := *l
	return &cp, nil
}

func (s *MemoryStore) ListLimits(_ context.Context, planID string) ([]*FeatureLimit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*FeatureLimit
	for _, l := range s.limits {
		if l.PlanID == planID {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) CreateSubscription(_ context.Context, sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now
	cp := cloneSub(sub)
	s.subs[sub.OrganizationID] = cp
	s.subsByID[sub.ID] = sub.OrganizationID
	return nil
}

func (s *MemoryStore) GetSubscription(_ context.Context, orgID string) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subs[orgID]
	if !ok {
		return nil, ErrNoSubscription
	}
	return cloneSub(sub), nil
}

func (s *MemoryStore) UpdateSubscription(_ context.Context, sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.subs[sub.OrganizationID]
	if !ok {
		return ErrNoSubscription
	}
	sub.CreatedAt = existing.CreatedAt
	sub.UpdatedAt = time.Now().UTC()
	s.subs[sub.OrganizationID] = cloneSub(sub)
	return nil
}

func (s *MemoryStore) ListLapsedTrials(_ context.Context, now time.Time, limit int) ([]*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Subscription
	for _, sub := range s.subs {
		if sub.TrialLapsed(now) {
			out = append(out, cloneSub(sub))
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *MemoryStore) ExpireTrial(_ context.Context, subID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	orgID, ok := s.subsByID[subID]
	if !ok {
		return ErrNoSubscription
	}
	sub := s.subs[orgID]
	sub.Status = SubExpired
	sub.UpdatedAt = time.Now().UTC()
	if s.expireOrg != nil {
		s.expireOrg(orgID)
	}
	return nil
}

// OnExpireOrganization registers a hook invoked with the organization
// id whenever ExpireTrial runs.
func (s *MemoryStore) OnExpireOrganization(fn func(orgID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireOrg = fn
}

func (s *MemoryStore) InitCounter(_ context.Context, c *UsageCounter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := counterKey(c.OrganizationID, c.FeatureKey)
	if _, ok := s.counters[key]; ok {
		return nil
	}
	now := time.Now().UTC()
	cp := *c
	if cp.LastResetAt.IsZero() {
		cp.LastResetAt = now
	}
	cp.UpdatedAt = now
	s.counters[key] = &cp
	return nil
}

func (s *MemoryStore) GetCounter(_ context.Context, orgID, featureKey string) (*UsageCounter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.counters[counterKey(orgID, featureKey)]
	if !ok {
		return &UsageCounter{OrganizationID: orgID, FeatureKey: featureKey, Reset: ResetNever}, nil
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) IncrementCounter(_ context.Context, orgID, featureKey string) (int64, error) {
	key := counterKey(orgID, featureKey)
	unlock := s.counterLocks.Lock(key)
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[key]
	if !ok {
		c = &UsageCounter{
			OrganizationID: orgID,
			FeatureKey:     featureKey,
			Reset:          ResetNever,
			LastResetAt:    time.Now().UTC(),
		}
		s.counters[key] = c
	}
	c.Used++
	c.UpdatedAt = time.Now().UTC()
	return c.Used, nil
}

func (s *MemoryStore) ListCountersDueReset(_ context.Context, cutoff time.Time, limit int) ([]*UsageCounter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*UsageCounter
	for _, c := range s.counters {
		if c.Reset == ResetMonthly && c.LastResetAt.Before(cutoff) {
			cp := *c
			out = append(out, &cp)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *MemoryStore) ResetCounter(_ context.Context, orgID, featureKey string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[counterKey(orgID, featureKey)]
	if !ok {
		return nil
	}
	c.Used = 0
	c.LastResetAt = at
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// DeleteByOrganization removes an organization's subscription and
// counters. Used by the in-memory registration path to undo a partial
// bootstrap.
func (s *MemoryStore) DeleteByOrganization(_ context.Context, orgID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub, ok := s.subs[orgID]; ok {
		delete(s.subsByID, sub.ID)
		delete(s.subs, orgID)
	}
	for key, c := range s.counters {
		if c.OrganizationID == orgID {
			delete(s.counters, key)
		}
	}
}

func cloneSub(s *Subscription) *Subscription {
	cp := *s
	if s.TrialEndsAt != nil {
		t := *s.TrialEndsAt
		cp.TrialEndsAt = &t
	}
	if s.PeriodEndsAt != nil {
		t := *s.PeriodEndsAt
		cp.PeriodEndsAt = &t
	}
	return &cp
}
