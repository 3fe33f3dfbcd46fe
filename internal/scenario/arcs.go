package scenario

// BuiltIn returns predefined outage arcs for the default device set.
func BuiltIn() map[string]Scenario {
	return map[string]Scenario{
		"rolling-outage": {
			Name:        "Rolling Outage",
			Description: "Devices drop one after another until the whole site is dark, then recover together.",
			Phases: []Phase{
				{
					Name:        "setup",
					Description: "Gateway loses its uplink.",
					Actions:     []Action{{Device: "dev-1", Status: "offline"}},
					Triggers:    []Trigger{{Event: EventTicks, Value: 3, Next: "escalation"}},
				},
				{
					Name:        "escalation",
					Description: "Upstream resolver becomes unreachable.",
					Actions:     []Action{{Device: "dev-2", Status: "offline"}},
					Triggers:    []Trigger{{Event: EventTicks, Value: 3, Next: "climax"}},
				},
				{
					Name:        "climax",
					Description: "Remote host follows; nothing answers.",
					Actions:     []Action{{Device: "dev-3", Status: "offline"}},
					Triggers:    []Trigger{{Event: EventTicks, Value: 3, Next: "resolution"}},
				},
				{
					Name:        "resolution",
					Description: "Power is restored and every device comes back.",
					Actions: []Action{
						{Device: "dev-1", Status: "online"},
						{Device: "dev-2", Status: "online"},
						{Device: "dev-3", Status: "online"},
					},
				},
			},
		},
		"flapping-link": {
			Name:        "Flapping Link",
			Description: "A bad cable makes the gateway bounce between up and down.",
			Phases: []Phase{
				{
					Name:     "down-1",
					Actions:  []Action{{Device: "dev-1", Status: "offline"}},
					Triggers: []Trigger{{Event: EventTicks, Value: 2, Next: "up-1"}},
				},
				{
					Name:     "up-1",
					Actions:  []Action{{Device: "dev-1", Status: "online"}},
					Triggers: []Trigger{{Event: EventTicks, Value: 2, Next: "down-2"}},
				},
				{
					Name:     "down-2",
					Actions:  []Action{{Device: "dev-1", Status: "offline"}},
					Triggers: []Trigger{{Event: EventTicks, Value: 2, Next: "stable"}},
				},
				{
					Name:        "stable",
					Description: "Cable replaced.",
					Actions:     []Action{{Device: "dev-1", Status: "online"}},
				},
			},
		},
		"maintenance-window": {
			Name:        "Maintenance Window",
			Description: "The remote host is taken down for planned work and returned to service.",
			Phases: []Phase{
				{
					Name:        "announce",
					Description: "Operators are notified ahead of the window.",
					Triggers:    []Trigger{{Event: EventTicks, Value: 2, Next: "window"}},
				},
				{
					Name:        "window",
					Description: "Remote host offline for maintenance.",
					Actions:     []Action{{Device: "dev-3", Status: "offline"}},
					Triggers:    []Trigger{{Event: EventTicks, Value: 5, Next: "done"}},
				},
				{
					Name:        "done",
					Description: "Remote host back in service.",
					Actions:     []Action{{Device: "dev-3", Status: "online"}},
				},
			},
		},
	}
}
