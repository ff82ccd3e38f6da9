package predict

type slot struct {
	Key       string
	StartHour int
	EndHour   int
}

// The last slot wraps midnight.
var slots = []slot{
	{Key: "7-9", StartHour: 7, EndHour: 9},
	{Key: "9-12", StartHour: 9, EndHour: 12},
	{Key: "12-15", StartHour: 12, EndHour: 15},
	{Key: "15-18", StartHour: 15, EndHour: 18},
	{Key: "18-21", StartHour: 18, EndHour: 21},
	{Key: "21-7", StartHour: 21, EndHour: 7},
}

const eveningSlotKey = "18-21"

func slotForHour(hour int) string {
	for _, s := range slots {
		if s.StartHour < s.EndHour {
			if hour >= s.StartHour && hour < s.EndHour {
				return s.Key
			}
			continue
		}
		if hour >= s.StartHour || hour < s.EndHour {
			return s.Key
		}
	}
	return slots[len(slots)-1].Key
}
