package status

import "sort"

// Composition is a site's devices partitioned by status plus the derived aggregate.
type Composition struct {
	Aggregate   Status
	Healthy     []string
	Fault       []string
	Dormant     []string
	DeviceCount int
}

// Compose partitions device records. Unknown statuses are counted as dormant.
func Compose(devices []DeviceStatusRecord) Composition {
	var c Composition
	for _, device := range devices {
		if device.DeviceID == "" {
			continue
		}
		switch s, _ := ParseStatus(string(device.Status)); s {
		case StatusHealthy:
			c.Healthy = append(c.Healthy, device.DeviceID)
		case StatusFault:
			c.Fault = append(c.Fault, device.DeviceID)
		default:
			c.Dormant = append(c.Dormant, device.DeviceID)
		}
		c.DeviceCount++
	}
	sort.Strings(c.Healthy)
	sort.Strings(c.Fault)
	sort.Strings(c.Dormant)
	c.Aggregate = AggregateOf(len(c.Healthy), len(c.Fault), len(c.Dormant))
	return c
}

// AggregateOf derives the site status from set sizes.
func AggregateOf(healthy, fault, dormant int) Status {
	switch {
	case fault > 0:
		return StatusFault
	case dormant > 0 && healthy == 0:
		return StatusDormant
	default:
		return StatusHealthy
	}
}

// Matches reports whether the stored record already reflects the composition.
// Set membership is compared irrespective of order.
func (c Composition) Matches(record *SiteStatusRecord) bool {
	if record == nil {
		return false
	}
	if record.Status != c.Aggregate {
		return false
	}
	return sameSet(record.Healthy, c.Healthy) &&
		sameSet(record.Fault, c.Fault) &&
		sameSet(record.Dormant, c.Dormant)
}

// Record builds the site record for this composition.
func (c Composition) Record(siteID string) SiteStatusRecord {
	return SiteStatusRecord{
		SiteID:      siteID,
		Status:      c.Aggregate,
		Healthy:     append([]string(nil), c.Healthy...),
		Fault:       append([]string(nil), c.Fault...),
		Dormant:     append([]string(nil), c.Dormant...),
		DeviceCount: c.DeviceCount,
	}
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, v := range a {
		seen[v]++
	}
	for _, v := range b {
		if seen[v] == 0 {
			return false
		}
		seen[v]--
	}
	return true
}
