// Package sdtest provides an in-process Security Director API for tests.
package sdtest

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"sd-address-tools/internal/model"
)

const (
	loginPath     = "/api/space/user-management/login"
	logoutPath    = "/api/space/user-management/logout"
	addressesPath = "/api/juniper/sd/address-management/addresses"
)

var filterRegexp = regexp.MustCompile(`^\((\w+) eq '(.*)'\)$`)

// Object is an address object held by the fake server.
type Object struct {
	ID          int
	Name        string
	Type        model.AddressType
	IPAddress   string
	Description *string
	EditVersion int
	Members     []int
}

// Call records one request that reached the server.
type Call struct {
	Method string
	Path   string
	Filter string
}

// Server is a fake Security Director. Objects are returned in insertion order.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	user     string
	password string
	sessions map[string]bool
	objects  []*Object
	nextID   int
	calls    []Call
	logouts  int

	// CreateStatus, when non-zero, is returned for every address creation.
	CreateStatus int
	// SkipCreate makes creation succeed without storing the object.
	SkipCreate bool
	// BeforeUpdate runs before a group update is applied, e.g. to simulate
	// a concurrent edit.
	BeforeUpdate func(s *Server, groupID int)
}

// NewServer starts a server accepting the given credentials.
func NewServer(user, password string) *Server {
	s := &Server{
		user:     user,
		password: password,
		sessions: make(map[string]bool),
		nextID:   100,
	}
	mux := http.NewServeMux()
	mux.HandleFunc(loginPath, s.handleLogin)
	mux.HandleFunc(logoutPath, s.handleLogout)
	mux.HandleFunc(addressesPath, s.handleAddresses)
	mux.HandleFunc(addressesPath+"/", s.handleAddress)
	s.Server = httptest.NewServer(mux)
	return s
}

// AddAddress stores a host or network object and returns its id.
func (s *Server) AddAddress(name string, typ model.AddressType, ip string, description *string) model.ObjectID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(&Object{Name: name, Type: typ, IPAddress: ip, Description: description})
}

// AddGroup stores an address group with the given members.
func (s *Server) AddGroup(name string, members ...model.ObjectID) model.ObjectID {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj := &Object{Name: name, Type: model.Group, EditVersion: 1}
	for _, m := range members {
		id, _ := strconv.Atoi(m.String())
		obj.Members = append(obj.Members, id)
	}
	return s.add(obj)
}

func (s *Server) add(obj *Object) model.ObjectID {
	s.nextID++
	obj.ID = s.nextID
	s.objects = append(s.objects, obj)
	return model.NumericObjectID(int64(obj.ID))
}

// Object returns a copy of the object with the given id.
func (s *Server) Object(id model.ObjectID) (Object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, _ := strconv.Atoi(id.String())
	if obj := s.byID(n); obj != nil {
		cp := *obj
		cp.Members = append([]int(nil), obj.Members...)
		return cp, true
	}
	return Object{}, false
}

// Members returns the member ids of a group.
func (s *Server) Members(id model.ObjectID) []model.ObjectID {
	obj, ok := s.Object(id)
	if !ok {
		return nil
	}
	out := make([]model.ObjectID, 0, len(obj.Members))
	for _, m := range obj.Members {
		out = append(out, model.NumericObjectID(int64(m)))
	}
	return out
}

// BumpEditVersion simulates a change made by another client. The caller
// must not hold the lock, except from within BeforeUpdate.
func (s *Server) BumpEditVersion(id int) {
	if obj := s.byID(id); obj != nil {
		obj.EditVersion++
	}
}

// Calls returns every recorded request except login/logout.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CountCalls counts recorded requests with the given method and filter field
// ("" matches any).
func (s *Server) CountCalls(method, filterField string) int {
	n := 0
	for _, c := range s.Calls() {
		if c.Method != method {
			continue
		}
		if filterField != "" && !strings.HasPrefix(c.Filter, "("+filterField+" ") {
			continue
		}
		n++
	}
	return n
}

// Logouts returns the number of successful logouts.
func (s *Server) Logouts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logouts
}

// ActiveSessions returns the number of sessions not logged out yet.
func (s *Server) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) byID(id int) *Object {
	for _, obj := range s.objects {
		if obj.ID == id {
			return obj
		}
	}
	return nil
}

func (s *Server) authorized(r *http.Request) bool {
	ck, err := r.Cookie("JSESSIONID")
	if err != nil {
		return false
	}
	return s.sessions[ck.Value]
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	user, password, ok := r.BasicAuth()
	if !ok || user != s.user || password != s.password {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	token := randomToken()
	s.mu.Lock()
	s.sessions[token] = true
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: token, Path: "/"})
	http.SetCookie(w, &http.Cookie{Name: "JSESSIONIDSSO", Value: randomToken(), Path: "/"})
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"user-ref":{"name":"` + user + `"}}`))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.authorized(r) {
		http.Error(w, "not logged in", http.StatusUnauthorized)
		return
	}
	ck, _ := r.Cookie("JSESSIONID")
	delete(s.sessions, ck.Value)
	s.logouts++
	w.WriteHeader(http.StatusNoContent)
}

type refJSON struct {
	ID          int               `json:"id"`
	Name        string            `json:"name"`
	AddressType model.AddressType `json:"address-type"`
	IPAddress   string            `json:"ip-address,omitempty"`
	Description *string           `json:"description,omitempty"`
}

func (s *Server) handleAddresses(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.authorized(r) {
		http.Error(w, "not logged in", http.StatusUnauthorized)
		return
	}

	filter := r.URL.Query().Get("filter")
	s.calls = append(s.calls, Call{Method: r.Method, Path: r.URL.Path, Filter: filter})

	switch r.Method {
	case http.MethodGet:
		s.list(w, filter)
	case http.MethodPost:
		s.create(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) list(w http.ResponseWriter, filter string) {
	var field, value string
	if filter != "" {
		m := filterRegexp.FindStringSubmatch(filter)
		if m == nil {
			http.Error(w, "bad filter", http.StatusBadRequest)
			return
		}
		field, value = m[1], m[2]
	}

	refs := []refJSON{}
	for _, obj := range s.objects {
		switch field {
		case "ipAddress":
			if obj.IPAddress != value {
				continue
			}
		case "name":
			if obj.Name != value {
				continue
			}
		}
		refs = append(refs, refJSON{
			ID:          obj.ID,
			Name:        obj.Name,
			AddressType: obj.Type,
			IPAddress:   obj.IPAddress,
			Description: obj.Description,
		})
	}

	var resp struct {
		Addresses struct {
			Total   int       `json:"total"`
			Address []refJSON `json:"address"`
		} `json:"addresses"`
	}
	resp.Addresses.Total = len(refs)
	resp.Addresses.Address = refs
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	if s.CreateStatus != 0 {
		http.Error(w, "creation rejected", s.CreateStatus)
		return
	}

	var req struct {
		Address struct {
			Name           string            `json:"name"`
			Description    string            `json:"description"`
			AddressType    model.AddressType `json:"address-type"`
			AddressVersion string            `json:"address-version"`
			IPAddress      string            `json:"ip-address"`
		} `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	a := req.Address
	if a.Name == "" || a.IPAddress == "" || (a.AddressType != model.Host && a.AddressType != model.Network) {
		http.Error(w, "invalid address", http.StatusBadRequest)
		return
	}
	if !s.SkipCreate {
		desc := a.Description
		s.add(&Object{Name: a.Name, Type: a.AddressType, IPAddress: a.IPAddress, Description: &desc})
	}
	w.WriteHeader(http.StatusOK)
}

type groupJSON struct {
	Address struct {
		ID          int               `json:"id"`
		Name        string            `json:"name"`
		Description string            `json:"description,omitempty"`
		AddressType model.AddressType `json:"address-type"`
		EditVersion int               `json:"edit-version"`
		Members     *struct {
			Member []struct {
				ID int `json:"id"`
			} `json:"member"`
		} `json:"members,omitempty"`
	} `json:"address"`
}

func (s *Server) handleAddress(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.authorized(r) {
		http.Error(w, "not logged in", http.StatusUnauthorized)
		return
	}
	s.calls = append(s.calls, Call{Method: r.Method, Path: r.URL.Path})

	id, err := strconv.Atoi(strings.TrimPrefix(r.URL.Path, addressesPath+"/"))
	if err != nil {
		http.Error(w, "bad id", http.StatusBadRequest)
		return
	}
	obj := s.byID(id)
	if obj == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		var resp groupJSON
		resp.Address.ID = obj.ID
		resp.Address.Name = obj.Name
		if obj.Description != nil {
			resp.Address.Description = *obj.Description
		}
		resp.Address.AddressType = obj.Type
		resp.Address.EditVersion = obj.EditVersion
		if len(obj.Members) > 0 {
			resp.Address.Members = &struct {
				Member []struct {
					ID int `json:"id"`
				} `json:"member"`
			}{}
			for _, m := range obj.Members {
				resp.Address.Members.Member = append(resp.Address.Members.Member, struct {
					ID int `json:"id"`
				}{ID: m})
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	case http.MethodPut:
		var req groupJSON
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if s.BeforeUpdate != nil {
			s.BeforeUpdate(s, id)
		}
		if req.Address.EditVersion != obj.EditVersion {
			http.Error(w, "stale edit-version", http.StatusConflict)
			return
		}
		obj.Members = obj.Members[:0]
		if req.Address.Members != nil {
			for _, m := range req.Address.Members.Member {
				obj.Members = append(obj.Members, m.ID)
			}
		}
		obj.EditVersion++
		w.WriteHeader(http.StatusOK)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func randomToken() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
