package wizard

import (
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/gorilla/schema"

	"github.com/vetnav/resource-finder/pkg/filter"
)

// State holds the eligibility wizard's answers. It follows the same
// normalize/encode/decode discipline as the filter state but is a
// sibling with its own field set and its own URL binding. The wizard's
// category filter uses the wizard_category key, so it can never collide
// with the sidebar's category parameter.
type State struct {
	AgeBracket    string   `json:"age_bracket,omitempty" schema:"age_bracket"`
	HouseholdSize int      `json:"household_size,omitempty" schema:"household_size"`
	IncomeBracket string   `json:"income_bracket,omitempty" schema:"income_bracket"`
	HousingStatus string   `json:"housing_status,omitempty" schema:"housing_status"`
	Dietary       []string `json:"dietary,omitempty" schema:"-"`
	BenefitTypes  []string `json:"benefit_types,omitempty" schema:"-"`
	Consultation  string   `json:"consultation_preference,omitempty" schema:"consultation_preference"`
	Category      string   `json:"wizard_category,omitempty" schema:"wizard_category"`
	Zip           string   `json:"zip,omitempty" schema:"zip"`
	States        []string `json:"states,omitempty" schema:"state"`
}

// Update is a partial change; nil fields are untouched.
type Update struct {
	AgeBracket    *string
	HouseholdSize *int
	IncomeBracket *string
	HousingStatus *string
	Dietary       *[]string
	BenefitTypes  *[]string
	Consultation  *string
	Category      *string
	Zip           *string
	States        *[]string
}

func (s State) Apply(u Update) State {
	if u.AgeBracket != nil {
		s.AgeBracket = *u.AgeBracket
	}
	if u.HouseholdSize != nil {
		s.HouseholdSize = *u.HouseholdSize
	}
	if u.IncomeBracket != nil {
		s.IncomeBracket = *u.IncomeBracket
	}
	if u.HousingStatus != nil {
		s.HousingStatus = *u.HousingStatus
	}
	if u.Dietary != nil {
		s.Dietary = slices.Clone(*u.Dietary)
	}
	if u.BenefitTypes != nil {
		s.BenefitTypes = slices.Clone(*u.BenefitTypes)
	}
	if u.Consultation != nil {
		s.Consultation = *u.Consultation
	}
	if u.Category != nil {
		s.Category = *u.Category
	}
	if u.Zip != nil {
		s.Zip = *u.Zip
		s.States = nil
	} else if u.States != nil {
		s.States = slices.Clone(*u.States)
		if len(s.States) > 0 {
			s.Zip = ""
		}
	}
	return Normalize(s)
}

// Normalize drops malformed values silently; the wizard never raises on
// bad input.
func Normalize(s State) State {
	if s.Zip != "" && !filter.ValidZip(s.Zip) {
		s.Zip = ""
	}
	if s.Zip != "" {
		s.States = nil
	}
	s.States = normalizeList(s.States, true)
	s.Dietary = normalizeList(s.Dietary, false)
	s.BenefitTypes = normalizeList(s.BenefitTypes, false)
	if s.HouseholdSize < 0 {
		s.HouseholdSize = 0
	}
	return s
}

func normalizeList(in []string, upper bool) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if upper {
			v = strings.ToUpper(v)
		}
		if v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Empty reports whether no field has ever been set.
func (s State) Empty() bool {
	return s.AgeBracket == "" && s.HouseholdSize == 0 && s.IncomeBracket == "" &&
		s.HousingStatus == "" && len(s.Dietary) == 0 && len(s.BenefitTypes) == 0 &&
		s.Consultation == "" && s.Category == "" && s.Zip == "" && len(s.States) == 0
}

// HasLocation reports whether the wizard knows where the user is.
func (s State) HasLocation() bool {
	return filter.ValidZip(s.Zip) || len(s.States) > 0
}

// Complete reports whether the minimal core of answers is present:
// location, age bracket and housing status.
func (s State) Complete() bool {
	return s.HasLocation() && s.AgeBracket != "" && s.HousingStatus != ""
}

var decoder = newDecoder()

func newDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}

// Encode writes the state into query values, omitting unset fields.
func Encode(s State) url.Values {
	s = Normalize(s)
	q := url.Values{}
	set := func(key, val string) {
		if val != "" {
			q.Set(key, val)
		}
	}
	set("age_bracket", s.AgeBracket)
	if s.HouseholdSize > 0 {
		q.Set("household_size", strconv.Itoa(s.HouseholdSize))
	}
	set("income_bracket", s.IncomeBracket)
	set("housing_status", s.HousingStatus)
	if len(s.Dietary) > 0 {
		q.Set("dietary", strings.Join(s.Dietary, ","))
	}
	if len(s.BenefitTypes) > 0 {
		q.Set("benefit_types", strings.Join(s.BenefitTypes, ","))
	}
	set("consultation_preference", s.Consultation)
	set("wizard_category", s.Category)
	set("zip", s.Zip)
	for _, st := range s.States {
		q.Add("state", st)
	}
	return q
}

func EncodeQuery(s State) string {
	return Encode(s).Encode()
}

// Decode parses query values into a normalized state, ignoring unknown
// keys and dropping malformed values.
func Decode(q url.Values) State {
	var s State
	_ = decoder.Decode(&s, dropEmpty(q))
	s.Dietary = splitList(q.Get("dietary"))
	s.BenefitTypes = splitList(q.Get("benefit_types"))
	return Normalize(s)
}

func DecodeQuery(raw string) State {
	q, err := url.ParseQuery(raw)
	if err != nil {
		q = url.Values{}
	}
	return Decode(q)
}

func dropEmpty(q url.Values) url.Values {
	out := url.Values{}
	for k, vs := range q {
		for _, v := range vs {
			if v != "" {
				out.Add(k, v)
			}
		}
	}
	return out
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Equal compares two states, treating nil and empty slices the same.
func (s State) Equal(o State) bool {
	return s.AgeBracket == o.AgeBracket && s.HouseholdSize == o.HouseholdSize &&
		s.IncomeBracket == o.IncomeBracket && s.HousingStatus == o.HousingStatus &&
		s.Consultation == o.Consultation && s.Category == o.Category && s.Zip == o.Zip &&
		slices.Equal(s.Dietary, o.Dietary) && slices.Equal(s.BenefitTypes, o.BenefitTypes) &&
		slices.Equal(s.States, o.States)
}
