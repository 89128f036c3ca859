package memory

import (
	"time"

	"certdash/internal/core"
)

const seedAuthority = "GSE"

// seed must be called before the backend is shared.
func (b *Backend) seed() {
	consumer := b.addUser(core.Registration{
		Email:    DemoConsumerEmail,
		Password: DemoPassword,
		Name:     "Demo Household",
		UserType: core.UserConsumer,
	}, core.EnergyOther)
	producer := b.addUser(core.Registration{
		Email:    DemoBusinessEmail,
		Password: DemoPassword,
		Name:     "Sunfield Energy",
		UserType: core.UserBusiness,
	}, core.EnergySolar)

	now := b.now().UTC()
	current := now.Year()
	for _, year := range []int{current - 1, current} {
		last := 12
		if year == current {
			last = int(now.Month())
		}
		for month := 1; month <= last; month++ {
			for _, et := range []core.EnergyType{core.EnergySolar, core.EnergyWind, core.EnergyHydro, core.EnergyBiomass} {
				b.consumptions[consumer.id] = append(b.consumptions[consumer.id], core.ConsumptionRecord{
					UserID:           consumer.id,
					ConsumptionYear:  year,
					ConsumptionMonth: month,
					EnergyTypeID:     int(et),
					EnergyConsumed:   seasonal(month, et),
				})
			}
			b.consumptions[producer.id] = append(b.consumptions[producer.id], core.ConsumptionRecord{
				UserID:           producer.id,
				ConsumptionYear:  year,
				ConsumptionMonth: month,
				EnergyTypeID:     int(core.EnergySolar),
				EnergyConsumed:   seasonal(month, core.EnergySolar) * 4,
			})
		}
	}

	// The lookup form opens on December of the default period, so that year
	// is always stocked alongside the current one.
	marketYears := []int{core.DefaultPeriod().Year}
	if current != marketYears[0] {
		marketYears = append(marketYears, current)
	}
	issued := time.Date(marketYears[0]-1, time.December, 1, 9, 0, 0, 0, time.UTC)
	for _, year := range marketYears {
		for month := 1; month <= 12; month++ {
			count := 5
			if month == 12 {
				count = 20
			}
			for i := 0; i < count; i++ {
				b.market = append(b.market, b.mint(producer, month, year, seedAuthority, issued))
			}
		}
	}

	// Historical sales to the demo consumer over the previous year.
	prev := current - 1
	sales := []struct {
		day   time.Time
		price float64
	}{
		{time.Date(prev, time.March, 4, 10, 30, 0, 0, time.UTC), 11.75},
		{time.Date(prev, time.March, 18, 15, 0, 0, 0, time.UTC), 12.10},
		{time.Date(prev, time.May, 1, 8, 0, 0, 0, time.UTC), 12.50},
		{time.Date(prev, time.May, 1, 17, 45, 0, 0, time.UTC), 12.50},
		{time.Date(prev, time.August, 22, 12, 0, 0, 0, time.UTC), 13.20},
		{time.Date(prev, time.November, 9, 9, 15, 0, 0, time.UTC), 12.80},
		{time.Date(current, time.January, 10, 11, 0, 0, 0, time.UTC), 13.05},
	}
	for _, s := range sales {
		c := b.mint(producer, int(s.day.Month()), s.day.Year(), seedAuthority, issued)
		b.transfer(c, consumer, s.price, s.day)
	}
}

// seasonal produces a deterministic monthly profile per energy type.
func seasonal(month int, et core.EnergyType) float64 {
	base := map[core.EnergyType]float64{
		core.EnergySolar:   60,
		core.EnergyWind:    45,
		core.EnergyHydro:   30,
		core.EnergyBiomass: 15,
	}[et]
	summer := 6 - abs(month-7)
	if et == core.EnergySolar {
		return base + float64(summer)*12
	}
	return base + float64(12-summer)*3
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
