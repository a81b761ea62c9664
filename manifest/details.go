package manifest

import (
	"encoding/json"

	"github.com/antonholmquist/jason"
)

// Details holds the fields specific to one resource type. The concrete type
// always agrees with Type().
type Details interface {
	Type() ResourceType
}

type SportDetails struct {
	Sport            string  `json:"sport,omitempty"`
	ActivityTime     float64 `json:"activityTime,omitempty"`
	ActivityDistance float64 `json:"activityDistance,omitempty"`
}

type AcademicDetails struct {
	Institution string `json:"institution,omitempty"`
	Course      string `json:"course,omitempty"`
	SchoolYear  int64  `json:"schoolYear,omitempty"`
}

type FamilyDetails struct {
	FamilyMembers []string `json:"familyMember,omitempty"`
}

type TravelDetails struct {
	Places []string `json:"places,omitempty"`
}

type WorkDetails struct {
	Company  string `json:"company,omitempty"`
	Position string `json:"position,omitempty"`
}

type PersonalDetails struct {
	Feeling string `json:"feeling,omitempty"`
}

type EntertainmentDetails struct {
	Artist   string `json:"artist,omitempty"`
	Genre    string `json:"genre,omitempty"`
	Movie    string `json:"movie,omitempty"`
	Festival string `json:"festival,omitempty"`
}

type OtherDetails struct{}

func (SportDetails) Type() ResourceType         { return Sport }
func (AcademicDetails) Type() ResourceType      { return Academic }
func (FamilyDetails) Type() ResourceType        { return Family }
func (TravelDetails) Type() ResourceType        { return Travel }
func (WorkDetails) Type() ResourceType          { return Work }
func (PersonalDetails) Type() ResourceType      { return Personal }
func (EntertainmentDetails) Type() ResourceType { return Entertainment }
func (OtherDetails) Type() ResourceType         { return Other }

// decodeDetails reads the fields belonging to rt out of obj. Fields of other
// resource types are ignored. Values of the wrong JSON type are dropped
// rather than rejected.
func decodeDetails(rt ResourceType, obj *jason.Object) Details {
	switch rt {
	case Sport:
		return SportDetails{
			Sport:            getString(obj, "sport"),
			ActivityTime:     getFloat(obj, "activityTime"),
			ActivityDistance: getFloat(obj, "activityDistance"),
		}
	case Academic:
		return AcademicDetails{
			Institution: getString(obj, "institution"),
			Course:      getString(obj, "course"),
			SchoolYear:  int64(getFloat(obj, "schoolYear")),
		}
	case Family:
		return FamilyDetails{FamilyMembers: getStrings(obj, "familyMember")}
	case Travel:
		return TravelDetails{Places: getStrings(obj, "places")}
	case Work:
		return WorkDetails{
			Company:  getString(obj, "company"),
			Position: getString(obj, "position"),
		}
	case Personal:
		return PersonalDetails{Feeling: getString(obj, "feeling")}
	case Entertainment:
		return EntertainmentDetails{
			Artist:   getString(obj, "artist"),
			Genre:    getString(obj, "genre"),
			Movie:    getString(obj, "movie"),
			Festival: getString(obj, "festival"),
		}
	}
	return OtherDetails{}
}

// DecodeDetails reads the details for rt from a JSON object, such as one
// produced by json.Marshal on a Details value. Empty input gives the zero
// details for rt.
func DecodeDetails(rt ResourceType, b []byte) (Details, error) {
	if len(b) == 0 {
		return decodeDetails(rt, nil), nil
	}
	obj, err := jason.NewObjectFromBytes(b)
	if err != nil {
		return nil, err
	}
	return decodeDetails(rt, obj), nil
}

// DetailFields returns the non-empty fields of d keyed by their JSON names.
func DetailFields(d Details) map[string]interface{} {
	result := make(map[string]interface{})
	if d == nil {
		return result
	}
	b, err := json.Marshal(d)
	if err != nil {
		return result
	}
	json.Unmarshal(b, &result)
	return result
}

func getString(obj *jason.Object, key string) string {
	if obj == nil {
		return ""
	}
	s, _ := obj.GetString(key)
	return s
}

// getFloat accepts numbers and numeric strings
func getFloat(obj *jason.Object, key string) float64 {
	if obj == nil {
		return 0
	}
	if f, err := obj.GetFloat64(key); err == nil {
		return f
	}
	if s, err := obj.GetString(key); err == nil {
		var n json.Number = json.Number(s)
		if f, err := n.Float64(); err == nil {
			return f
		}
	}
	return 0
}

// getStrings accepts a list of strings or a single string
func getStrings(obj *jason.Object, key string) []string {
	if obj == nil {
		return nil
	}
	if list, err := obj.GetValueArray(key); err == nil {
		var result []string
		for _, v := range list {
			if s, err := v.String(); err == nil && s != "" {
				result = append(result, s)
			}
		}
		return result
	}
	if s, err := obj.GetString(key); err == nil && s != "" {
		return []string{s}
	}
	return nil
}
