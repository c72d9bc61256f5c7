package config

// Default returns the stock configuration: three chained producers, a
// warehouse accepting the final product, and a ten-slot player inventory.
func Default() *Config {
	const (
		capacity = 20
		speed    = 0.25
	)

	cfg := &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080, TickRate: 20},
		Debug: DebugConfig{
			LogTransferStarted:  true,
			LogTransferFinished: true,
			LogContainerChanged: true,
			LogBuildingStates:   true,
		},
		Simulation: Simulation{
			Resources: []ResourceConfig{
				{ID: 1, Key: "n1", Name: "N1"},
				{ID: 2, Key: "n2", Name: "N2"},
				{ID: 3, Key: "n3", Name: "N3"},
			},
			Recipes: []RecipeConfig{
				{Name: "r1", Output: "n1", ProductionSeconds: 2},
				{Name: "r2", Output: "n2", ProductionSeconds: 3, Inputs: []InputConfig{
					{Resource: "n1", Amount: 1},
				}},
				{Name: "r3", Output: "n3", ProductionSeconds: 4, Inputs: []InputConfig{
					{Resource: "n1", Amount: 1},
					{Resource: "n2", Amount: 1},
				}},
				{Name: "warehouse", Inputs: []InputConfig{
					{Resource: "n3", Amount: 0},
				}},
			},
			Buildings: []BuildingConfig{
				{
					ID: 1, Name: "B1", Recipe: "r1",
					InputCapacity: 0, OutputCapacity: capacity,
					InputSecondsPerUnit: speed, OutputSecondsPerUnit: speed,
				},
				{
					ID: 2, Name: "B2", Recipe: "r2",
					InputCapacity: capacity, OutputCapacity: capacity,
					InputSecondsPerUnit: speed, OutputSecondsPerUnit: speed,
					InitialInputs: []StackConfig{{Resource: "n1", Amount: 2}},
				},
				{
					ID: 3, Name: "B3", Recipe: "r3",
					InputCapacity: capacity, OutputCapacity: capacity,
					InputSecondsPerUnit: speed, OutputSecondsPerUnit: speed,
					InitialInputs: []StackConfig{
						{Resource: "n1", Amount: 1},
						{Resource: "n2", Amount: 1},
					},
				},
				{
					ID: 4, Name: "Warehouse", Recipe: "warehouse",
					InputCapacity: 999, OutputCapacity: 0,
					InputSecondsPerUnit: speed,
					Passive:             true,
				},
			},
			Player: PlayerConfig{
				InventoryCapacity:    10,
				PickupSecondsPerUnit: speed,
				DropSecondsPerUnit:   speed,
			},
		},
	}
	cfg.SetDefaults()
	return cfg
}
