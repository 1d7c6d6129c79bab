// Package gridrules is the rule engine of a power-monitoring unit. Operators
// attach short boolean expressions to the unit and to each of its modules;
// the engine re-evaluates them on a fixed cadence against live readings and
// hands the command of every matching rule to the control loop.
//
// # Quick Start
//
//	unit := gridrules.NewUnit("unit-1",
//		rulestore.NewRule(10, `voltage > 250 AND frequency < 49.5`, "shed_load"))
//	relay := gridrules.NewModule("relay-1",
//		rulestore.NewRule(1, `temperature >= 80 OR mode IN ["eco", "off"]`, "relay_off"))
//
//	registry := gridrules.NewRegistry(unit)
//	registry.AddModule(relay)
//
//	queue := actions.NewQueue(64)
//	engine := gridrules.NewEngine(registry, queue, gridrules.DefaultOptions(), logger)
//	engine.Start(ctx)
//	engine.MarkReady()
//
// # Architecture
//
//   - parser: lexer, array literal handling and a Pratt expression parser
//   - variables: per-pass bindings built from an owner's attributes
//   - rulestore: ordered rule lists with atomic replacement and a document codec
//   - actions: command messages, the dispatch queue and the control loop
//   - gate: readiness and pause signals
//   - metrics: cycle statistics and management API request metrics
//   - dashboard: HTTP management API and a websocket event feed
//
// # Rule Language
//
// Expressions combine comparisons with boolean connectives:
//
//	voltage > 200 AND frequency < 49.5
//	NOT (relay == 1) || load >= 0.9
//	mode in ['eco', 'night']
//
// Comparison operators are ==, =, !=, <, >, <=, >=. Connectives are AND, OR
// and NOT, spelled as words in any case or as &&, || and !. Array literals
// hold quoted strings only and are used on the right of IN.
//
// # Evaluation
//
// Each cycle reasons about the unit first and then every module in
// registration order. Within one owner, rules run highest priority first and
// rules of equal priority keep their insertion order. A rule that fails to
// parse or evaluate is logged and skipped; it never stops its siblings.
package gridrules
