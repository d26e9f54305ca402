package sdk

import (
	"fmt"
	"time"
)

// Reserved property keys written by ItemProperties and UserProperties.
const (
	PropCategories = "categories"
	PropLatLng     = "latlng"
	PropStartTime  = "startTime"
	PropEndTime    = "endTime"
)

var reservedProps = map[string]bool{
	PropCategories: true,
	PropLatLng:     true,
	PropStartTime:  true,
	PropEndTime:    true,
}

// ItemProperties are the recognized attributes of an item. They are sent as
// the properties of a $set event on the item.
//
// Latitude and Longitude must be set together and are encoded as a single
// [lat, lng] array. Custom keys must not collide with a reserved key.
type ItemProperties struct {
	Categories []string
	Latitude   *float64
	Longitude  *float64
	StartTime  *time.Time
	EndTime    *time.Time
	Custom     map[string]interface{}
}

// Properties validates p and returns the event property map.
func (p ItemProperties) Properties() (map[string]interface{}, error) {
	out, err := customProperties(p.Custom)
	if err != nil {
		return nil, err
	}
	if len(p.Categories) > 0 {
		out[PropCategories] = append([]string(nil), p.Categories...)
	}
	if err := putLatLng(out, p.Latitude, p.Longitude); err != nil {
		return nil, err
	}
	if p.StartTime != nil {
		out[PropStartTime] = FormatTime(*p.StartTime)
	}
	if p.EndTime != nil {
		out[PropEndTime] = FormatTime(*p.EndTime)
	}
	if p.StartTime != nil && p.EndTime != nil && p.EndTime.Before(*p.StartTime) {
		return nil, fmt.Errorf("%w: end time is before start time", ErrInvalidEvent)
	}
	return out, nil
}

// UserProperties are the recognized attributes of a user.
type UserProperties struct {
	Latitude  *float64
	Longitude *float64
	Custom    map[string]interface{}
}

// Properties validates p and returns the event property map.
func (p UserProperties) Properties() (map[string]interface{}, error) {
	out, err := customProperties(p.Custom)
	if err != nil {
		return nil, err
	}
	if err := putLatLng(out, p.Latitude, p.Longitude); err != nil {
		return nil, err
	}
	return out, nil
}

func customProperties(custom map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(custom)+4)
	for k, v := range custom {
		if reservedProps[k] {
			return nil, fmt.Errorf("%w: custom property %q collides with a reserved name", ErrInvalidEvent, k)
		}
		out[k] = v
	}
	return out, nil
}

func putLatLng(props map[string]interface{}, lat, lng *float64) error {
	if (lat == nil) != (lng == nil) {
		return fmt.Errorf("%w: latitude and longitude must be set together", ErrInvalidEvent)
	}
	if lat == nil {
		return nil
	}
	if *lat < -90 || *lat > 90 || *lng < -180 || *lng > 180 {
		return fmt.Errorf("%w: coordinates (%g, %g) out of range", ErrInvalidEvent, *lat, *lng)
	}
	props[PropLatLng] = []float64{*lat, *lng}
	return nil
}

// ItemFromEvent reads ItemProperties back from the properties of an event.
// Unknown keys are returned in Custom.
func ItemFromEvent(e *Event) (ItemProperties, error) {
	var p ItemProperties
	custom := make(map[string]interface{})
	for k, v := range e.Properties {
		switch k {
		case PropCategories:
			cats, err := stringList(v)
			if err != nil {
				return p, fmt.Errorf("%s: %w", PropCategories, err)
			}
			p.Categories = cats
		case PropLatLng:
			lat, lng, err := latLng(v)
			if err != nil {
				return p, err
			}
			p.Latitude, p.Longitude = &lat, &lng
		case PropStartTime, PropEndTime:
			s, ok := v.(string)
			if !ok {
				return p, fmt.Errorf("%s: expected string, got %T", k, v)
			}
			t, err := ParseTime(s)
			if err != nil {
				return p, fmt.Errorf("%s: %w", k, err)
			}
			if k == PropStartTime {
				p.StartTime = &t
			} else {
				p.EndTime = &t
			}
		default:
			custom[k] = v
		}
	}
	if len(custom) > 0 {
		p.Custom = custom
	}
	return p, nil
}

func stringList(v interface{}) ([]string, error) {
	switch list := v.(type) {
	case []string:
		return append([]string(nil), list...), nil
	case []interface{}:
		out := make([]string, len(list))
		for i, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("element %d: expected string, got %T", i, item)
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected array, got %T", v)
	}
}

// latLng extracts [0]=latitude and [1]=longitude.
func latLng(v interface{}) (float64, float64, error) {
	var pair []float64
	switch list := v.(type) {
	case []float64:
		pair = list
	case []interface{}:
		pair = make([]float64, len(list))
		for i, item := range list {
			f, ok := item.(float64)
			if !ok {
				return 0, 0, fmt.Errorf("%s element %d: expected number, got %T", PropLatLng, i, item)
			}
			pair[i] = f
		}
	default:
		return 0, 0, fmt.Errorf("%s: expected array, got %T", PropLatLng, v)
	}
	if len(pair) < 2 {
		return 0, 0, fmt.Errorf("%s: expected 2 coordinates, got %d", PropLatLng, len(pair))
	}
	return pair[0], pair[1], nil
}
