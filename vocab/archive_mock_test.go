package vocab

import (
	"github.com/ncasuk/amf-cv-transformer/cv"
)

// mockArchive records every call and builds the tree with an in-memory cv.Service.
type mockArchive struct {
	svc      *cv.Service
	calls    []string
	archived []*cv.Authority
	err      error
}

func newMockArchive() *mockArchive {
	return &mockArchive{svc: cv.NewService()}
}

func (m *mockArchive) CreateAuthority(info cv.AuthorityInfo) (*cv.Authority, error) {
	m.calls = append(m.calls, "authority:"+info.Name)
	return m.svc.CreateAuthority(info)
}

func (m *mockArchive) CreateScope(a *cv.Authority, info cv.ScopeInfo) (*cv.Scope, error) {
	m.calls = append(m.calls, "scope:"+info.Name)
	return m.svc.CreateScope(a, info)
}

func (m *mockArchive) CreateCollection(s *cv.Scope, info cv.CollectionInfo) (*cv.Collection, error) {
	m.calls = append(m.calls, "collection:"+s.Name+"/"+info.Name)
	return m.svc.CreateCollection(s, info)
}

func (m *mockArchive) CreateTerm(c *cv.Collection, info cv.TermInfo) (*cv.Term, error) {
	m.calls = append(m.calls, "term:"+c.Name+"/"+info.Name)
	return m.svc.CreateTerm(c, info)
}

func (m *mockArchive) Archive(a *cv.Authority) error {
	m.calls = append(m.calls, "archive")
	if m.err != nil {
		return m.err
	}
	m.archived = append(m.archived, a)
	return nil
}
