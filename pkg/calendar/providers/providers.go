package providers

import (
	"github.com/venkytv/meeting-reminder/pkg/calendar"
	"github.com/venkytv/meeting-reminder/pkg/calendar/caldav"
	"github.com/venkytv/meeting-reminder/pkg/calendar/google"
	"github.com/venkytv/meeting-reminder/pkg/calendar/ical"
)

// InitializeBuiltinProviders registers all built-in calendar providers with the factory
func InitializeBuiltinProviders(factory *calendar.DefaultProviderFactory) {
	// Authenticated iCalendar fetch
	factory.RegisterProvider("caldav", func() calendar.Provider {
		return caldav.NewSimpleProvider()
	})

	// Public iCal URLs and local .ics files
	factory.RegisterProvider("ical", func() calendar.Provider {
		return ical.NewProvider()
	})

	factory.RegisterProvider("google", func() calendar.Provider {
		return google.NewProvider()
	})
}
