package policy

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"eeia/internal/domain"
)

type RegistrySuite struct {
	suite.Suite
	registry *Registry
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) SetupTest() {
	s.registry = NewRegistry()
}

func (s *RegistrySuite) policy(id string, opts ...domain.PolicyOption) domain.Policy {
	p, err := domain.NewPolicy(id, "policy "+id, opts...)
	s.Require().NoError(err)
	return p
}

func (s *RegistrySuite) packet(env domain.Environment, dom domain.Domain, pr domain.Priority) domain.Packet {
	pkt, err := domain.NewPacket(domain.PacketInput{
		PacketID:    "pkt-registry-1",
		DeviceID:    "dev-1",
		CreatedAt:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Environment: env,
		Domain:      dom,
		Priority:    pr,
	})
	s.Require().NoError(err)
	return pkt
}

func (s *RegistrySuite) ids() []string {
	var out []string
	for _, p := range s.registry.All() {
		out = append(out, p.ID)
	}
	return out
}

func (s *RegistrySuite) TestUpsert() {
	s.Run("appends in insertion order", func() {
		s.registry.Upsert(s.policy("pol-a"))
		s.registry.Upsert(s.policy("pol-b"))
		s.registry.Upsert(s.policy("pol-c"))
		s.Equal([]string{"pol-a", "pol-b", "pol-c"}, s.ids())
	})

	s.Run("replace moves policy to the end", func() {
		s.registry.Upsert(s.policy("pol-a", domain.WithTarget("https://new.example")))
		s.Equal([]string{"pol-b", "pol-c", "pol-a"}, s.ids())
		p, ok := s.registry.Get("pol-a")
		s.Require().True(ok)
		s.Equal("https://new.example", p.TargetEndpoint)
		s.Equal(3, s.registry.Len())
	})
}

func (s *RegistrySuite) TestRemove() {
	s.registry.Upsert(s.policy("pol-a"))
	s.registry.Upsert(s.policy("pol-b"))

	s.registry.Remove("pol-missing")
	s.Equal([]string{"pol-a", "pol-b"}, s.ids())

	s.registry.Remove("pol-a")
	s.Equal([]string{"pol-b"}, s.ids())
}

func (s *RegistrySuite) TestAllIsDefensiveCopy() {
	s.registry.Upsert(s.policy("pol-a"))
	all := s.registry.All()
	all[0].ID = "mutated"
	_ = append(all, s.policy("pol-z"))

	s.Equal([]string{"pol-a"}, s.ids())
}

func (s *RegistrySuite) TestMatchForPacket() {
	s.Run("no policies", func() {
		_, ok := s.registry.MatchForPacket(s.packet(domain.EnvironmentGround, domain.DomainMedical, domain.PriorityHigh))
		s.False(ok)
	})

	s.Run("first match wins", func() {
		s.registry.Upsert(s.policy("pol-ground", domain.MatchEnvironment(domain.EnvironmentGround)))
		s.registry.Upsert(s.policy("pol-medical", domain.MatchDomain(domain.DomainMedical)))

		p, ok := s.registry.MatchForPacket(s.packet(domain.EnvironmentGround, domain.DomainMedical, domain.PriorityLow))
		s.Require().True(ok)
		s.Equal("pol-ground", p.ID)
	})

	s.Run("replace changes precedence", func() {
		s.registry.Upsert(s.policy("pol-ground", domain.MatchEnvironment(domain.EnvironmentGround)))

		p, ok := s.registry.MatchForPacket(s.packet(domain.EnvironmentGround, domain.DomainMedical, domain.PriorityLow))
		s.Require().True(ok)
		s.Equal("pol-medical", p.ID)
	})

	s.Run("priority below minimum skips policy", func() {
		s.registry.Clear()
		s.registry.Upsert(s.policy("pol-critical", domain.WithMinPriority(domain.PriorityCritical)))
		s.registry.Upsert(s.policy("pol-any"))

		p, ok := s.registry.MatchForPacket(s.packet(domain.EnvironmentAir, domain.DomainOther, domain.PriorityHigh))
		s.Require().True(ok)
		s.Equal("pol-any", p.ID)
	})
}

func (s *RegistrySuite) TestConcurrentUpsertAndMatch() {
	pkt := s.packet(domain.EnvironmentGround, domain.DomainWater, domain.PriorityNormal)
	batches := make([][]domain.Policy, 8)
	for i := range batches {
		for j := range 5 {
			batches[i] = append(batches[i], s.policy(fmt.Sprintf("pol-%d-%d", i, j)))
		}
	}

	var wg sync.WaitGroup
	for i := range batches {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := range 50 {
				s.registry.Upsert(batches[i][j%5])
			}
		}()
		go func() {
			defer wg.Done()
			for range 50 {
				s.registry.MatchForPacket(pkt)
			}
		}()
	}
	wg.Wait()
	s.Equal(40, s.registry.Len())
}
