package eligibility

import (
	"fmt"
	"strings"
)

// Status is the eligibility state of a patient case.
type Status uint8

const (
	StatusPending Status = iota + 1
	StatusInReview
	StatusCleared
	StatusDisqualified
	StatusCompleted
)

// AllStatuses lists every status in workflow order.
var AllStatuses = []Status{StatusPending, StatusInReview, StatusCleared, StatusDisqualified, StatusCompleted}

var statusNames = map[Status]string{
	StatusPending:      "Pending",
	StatusInReview:     "In Review",
	StatusCleared:      "Cleared",
	StatusDisqualified: "Disqualified",
	StatusCompleted:    "Completed",
}

func (s Status) String() string { return enumName(statusNames, s) }

// Terminal reports whether no transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusDisqualified || s == StatusCompleted
}

func ParseStatus(v string) (Status, error) { return parseEnum("status", statusNames, v) }

func (s Status) MarshalText() ([]byte, error)  { return marshalEnum("status", statusNames, s) }
func (s *Status) UnmarshalText(b []byte) error { return unmarshalEnum("status", statusNames, s, b) }

// Category is the risk-triage classification. It is independent of Status.
type Category uint8

const (
	CategoryUncategorized Category = iota + 1
	CategoryCat1
	CategoryCat2
	CategoryCat3
	CategoryCat4
)

var AllCategories = []Category{CategoryCat1, CategoryCat2, CategoryCat3, CategoryCat4, CategoryUncategorized}

var categoryNames = map[Category]string{
	CategoryUncategorized: "Uncategorized",
	CategoryCat1:          "CAT 1",
	CategoryCat2:          "CAT 2",
	CategoryCat3:          "CAT 3",
	CategoryCat4:          "CAT 4",
}

func (c Category) String() string { return enumName(categoryNames, c) }

func ParseCategory(v string) (Category, error) { return parseEnum("category", categoryNames, v) }

func (c Category) MarshalText() ([]byte, error)  { return marshalEnum("category", categoryNames, c) }
func (c *Category) UnmarshalText(b []byte) error { return unmarshalEnum("category", categoryNames, c, b) }

// ProviderType is the role a provider plays on a case.
type ProviderType uint8

const (
	ProviderSurgeon ProviderType = iota + 1
	ProviderCRNA
	ProviderTravelCoordinator
)

var providerTypeNames = map[ProviderType]string{
	ProviderSurgeon:           "Surgeon",
	ProviderCRNA:              "CRNA",
	ProviderTravelCoordinator: "Travel Coordinator",
}

func (p ProviderType) String() string { return enumName(providerTypeNames, p) }

// IssuesClearance reports whether providers of this type sign clearances.
func (p ProviderType) IssuesClearance() bool {
	return p == ProviderSurgeon || p == ProviderCRNA
}

func ParseProviderType(v string) (ProviderType, error) {
	return parseEnum("provider type", providerTypeNames, v)
}

func (p ProviderType) MarshalText() ([]byte, error) {
	return marshalEnum("provider type", providerTypeNames, p)
}

func (p *ProviderType) UnmarshalText(b []byte) error {
	return unmarshalEnum("provider type", providerTypeNames, p, b)
}

// Treatment is the proposed arch treatment.
type Treatment uint8

const (
	TreatmentUpper Treatment = iota + 1
	TreatmentLower
	TreatmentUpperAndLower
)

var treatmentNames = map[Treatment]string{
	TreatmentUpper:         "Upper",
	TreatmentLower:         "Lower",
	TreatmentUpperAndLower: "Upper and Lower",
}

func (t Treatment) String() string { return enumName(treatmentNames, t) }

func ParseTreatment(v string) (Treatment, error) { return parseEnum("treatment", treatmentNames, v) }

func (t Treatment) MarshalText() ([]byte, error)  { return marshalEnum("treatment", treatmentNames, t) }
func (t *Treatment) UnmarshalText(b []byte) error { return unmarshalEnum("treatment", treatmentNames, t, b) }

type Sex uint8

const (
	SexMale Sex = iota + 1
	SexFemale
)

var sexNames = map[Sex]string{
	SexMale:   "Male",
	SexFemale: "Female",
}

func (s Sex) String() string { return enumName(sexNames, s) }

func ParseSex(v string) (Sex, error) { return parseEnum("sex", sexNames, v) }

func (s Sex) MarshalText() ([]byte, error)  { return marshalEnum("sex", sexNames, s) }
func (s *Sex) UnmarshalText(b []byte) error { return unmarshalEnum("sex", sexNames, s, b) }

// -- helpers shared by the enums above --

type enum interface {
	~uint8
}

func enumName[T enum](names map[T]string, v T) string {
	if n, ok := names[v]; ok {
		return n
	}
	return fmt.Sprintf("unknown(%d)", uint8(v))
}

// normalizeEnum folds case and drops separators so "In Review", "in-review"
// and "InReview" all match.
func normalizeEnum(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	return strings.NewReplacer(" ", "", "-", "", "_", "").Replace(v)
}

func parseEnum[T enum](kind string, names map[T]string, v string) (T, error) {
	key := normalizeEnum(v)
	for val, name := range names {
		if normalizeEnum(name) == key {
			return val, nil
		}
	}
	return 0, invalidArg("unrecognized %s %q", kind, v)
}

func marshalEnum[T enum](kind string, names map[T]string, v T) ([]byte, error) {
	n, ok := names[v]
	if !ok {
		return nil, invalidArg("unrecognized %s %d", kind, uint8(v))
	}
	return []byte(n), nil
}

func unmarshalEnum[T enum](kind string, names map[T]string, dst *T, b []byte) error {
	v, err := parseEnum(kind, names, string(b))
	if err != nil {
		return err
	}
	*dst = v
	return nil
}
