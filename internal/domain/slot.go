package domain

// Slot names the kind of personal fact a claim asserts. The set is closed:
// text that matches no slot pattern produces no claim.
type Slot string

const (
	SlotName     Slot = "name"
	SlotEmployer Slot = "employer"
	SlotRole     Slot = "role"
	SlotLocation Slot = "location"
	SlotAge      Slot = "age"
	SlotDiet     Slot = "diet"
	SlotLanguage Slot = "language"
	SlotHobby    Slot = "hobby"
	SlotPet      Slot = "pet"
)

// SlotTraits describes how values in a slot relate to each other. Exclusive
// slots admit one current value, so two distinct values contradict.
// Enumerable slots accumulate values and their phrases split on list
// separators during extraction.
type SlotTraits struct {
	Exclusive  bool
	Enumerable bool
}

var slotTraits = map[Slot]SlotTraits{
	SlotName:     {Exclusive: true},
	SlotEmployer: {Exclusive: true},
	SlotRole:     {Exclusive: true},
	SlotLocation: {Exclusive: true},
	SlotAge:      {Exclusive: true},
	SlotDiet:     {Exclusive: true},
	SlotLanguage: {Enumerable: true},
	SlotHobby:    {Enumerable: true},
	SlotPet:      {Enumerable: true},
}

func (s Slot) Traits() SlotTraits {
	return slotTraits[s]
}

func (s Slot) Exclusive() bool {
	return slotTraits[s].Exclusive
}

func (s Slot) Enumerable() bool {
	return slotTraits[s].Enumerable
}

func ValidSlot(s string) bool {
	_, ok := slotTraits[Slot(s)]
	return ok
}

func AllSlots() []Slot {
	return []Slot{
		SlotName, SlotEmployer, SlotRole, SlotLocation, SlotAge,
		SlotDiet, SlotLanguage, SlotHobby, SlotPet,
	}
}
