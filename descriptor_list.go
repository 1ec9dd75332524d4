package tssi

import "fmt"

// DescriptorList represents an ordered list of descriptors
type DescriptorList struct {
	descriptors []*Descriptor
}

// Reset empties the list
func (l *DescriptorList) Reset() {
	l.descriptors = nil
}

// Length returns the number of descriptors
func (l *DescriptorList) Length() int {
	if l == nil {
		return 0
	}
	return len(l.descriptors)
}

// LengthForTag returns the number of descriptors with the given tag
func (l *DescriptorList) LengthForTag(tag DescriptorTag) (n int) {
	if l == nil {
		return
	}
	for _, d := range l.descriptors {
		if d.Tag == tag {
			n++
		}
	}
	return
}

// Descriptors returns all descriptors in order
func (l *DescriptorList) Descriptors() []*Descriptor {
	if l == nil {
		return nil
	}
	return l.descriptors
}

// Descriptor returns the descriptor at index idx
func (l *DescriptorList) Descriptor(idx int) (*Descriptor, error) {
	if idx < 0 || idx >= l.Length() {
		return nil, fmt.Errorf("tssi: descriptor index %d out of %d: %w", idx, l.Length(), ErrNotFound)
	}
	return l.descriptors[idx], nil
}

// DescriptorTag returns the tag of the descriptor at index idx
func (l *DescriptorList) DescriptorTag(idx int) (DescriptorTag, error) {
	d, err := l.Descriptor(idx)
	if err != nil {
		return 0, err
	}
	return d.Tag, nil
}

// DescriptorLength returns the body length of the descriptor at index idx
func (l *DescriptorList) DescriptorLength(idx int) (uint8, error) {
	d, err := l.Descriptor(idx)
	if err != nil {
		return 0, err
	}
	return d.Length, nil
}

// DescriptorByTag returns the first descriptor with the given tag
func (l *DescriptorList) DescriptorByTag(tag DescriptorTag) (*Descriptor, error) {
	return l.DescriptorByTagOccurrence(tag, 0)
}

// DescriptorByTagOccurrence returns the n-th (0 based) descriptor with the given tag
func (l *DescriptorList) DescriptorByTagOccurrence(tag DescriptorTag, n int) (*Descriptor, error) {
	if l != nil && n >= 0 {
		for _, d := range l.descriptors {
			if d.Tag != tag {
				continue
			}
			if n == 0 {
				return d, nil
			}
			n--
		}
	}
	return nil, fmt.Errorf("tssi: descriptor with tag 0x%x: %w", uint8(tag), ErrNotFound)
}
