package automation

import (
	"fmt"
	"time"

	"github.com/nerrad567/packpilot/internal/vision"
)

// Game identifiers used by the built-in scenarios.
const (
	GamePackage     = "jp.pokemon.pokemontcgp"
	GameActivity    = "com.unity3d.player.UnityPlayerActivity"
	GameAccountFile = "/data/data/jp.pokemon.pokemontcgp/shared_prefs/deviceAccount:.xml"
)

// Payload keys produced by pack_gather.
const (
	PayloadNickname = "nickname"
	PayloadFriendID = "friend_id"
)

// searchAttempts is the capture budget of anchors a scenario cannot
// proceed without.
const searchAttempts = 20

// BuiltinOptions parameterises the built-in scenarios.
type BuiltinOptions struct {
	// Pack is the template key of the booster pack pack_open selects.
	Pack string
}

// Builtins returns the built-in scenarios, ready to register.
func Builtins(opts BuiltinOptions) []*Scenario {
	if opts.Pack == "" {
		opts.Pack = "a21"
	}
	return []*Scenario{
		packGather(),
		packOpen(opts.Pack),
		friendAdd(),
		dataDelete(),
	}
}

// RegisterBuiltins registers every built-in scenario with r.
func RegisterBuiltins(r *Registry, opts BuiltinOptions) error {
	for _, sc := range Builtins(opts) {
		if err := r.Register(sc); err != nil {
			return fmt.Errorf("registering %s: %w", sc.Kind, err)
		}
	}
	return nil
}

// Step constructors.

// find taps a template if it shows up within the default budget and moves
// on either way.
func find(name, key string, taps int) Step {
	return Step{
		Name:     name,
		Kind:     KindPollAndAct,
		Anchor:   TemplateAnchor{Key: key},
		Actions:  []Action{TapAnchor{Times: taps, Interval: 100 * time.Millisecond}},
		Optional: true,
	}
}

// await waits for a template the scenario cannot continue without, then
// performs acts.
func await(name, key string, acts ...Action) Step {
	return Step{
		Name:     name,
		Kind:     KindPollAndAct,
		Anchor:   TemplateAnchor{Key: key},
		Actions:  acts,
		Attempts: searchAttempts,
	}
}

func awaitPixel(name string, c vision.RGB, tolerance int, acts ...Action) Step {
	return Step{
		Name:     name,
		Kind:     KindPollAndAct,
		Anchor:   PixelAnchor{Color: c, Tolerance: tolerance},
		Actions:  acts,
		Attempts: searchAttempts,
	}
}

// do acts without waiting for an anchor.
func do(name string, acts ...Action) Step {
	return Step{Name: name, Kind: KindPollAndAct, Actions: acts}
}

func tap(x, y int, pause time.Duration) Tap {
	return Tap{X: x, Y: y, Times: 1, Interval: pause}
}

func taps(x, y, n int, interval time.Duration) Tap {
	return Tap{X: x, Y: y, Times: n, Interval: interval}
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// restart closes the game and launches it again, wiping the account when
// fresh is set.
func restart(prefix string, fresh bool) []Step {
	acts := []Action{StopApp{Package: GamePackage}}
	if fresh {
		acts = append(acts, RemoveFile{Path: GameAccountFile})
	}
	acts = append(acts,
		Wait{Duration: 2 * time.Second},
		StartApp{Package: GamePackage, Activity: GameActivity},
	)
	return []Step{
		do(prefix+":restart", acts...),
		find(prefix+":title", "title", 5),
		find(prefix+":mod", "mod", 1),
		do(prefix+":speed", Swipe{X1: 35, Y1: 260, X2: 200, Y2: 260, Duration: ms(300), Times: 1}),
		find(prefix+":mod_minimize", "mod_minimize", 1),
	}
}

// openPack swipes a pack open and taps through its cards.
func openPack(prefix string) []Step {
	return []Step{
		do(prefix+":swipe", Swipe{X1: 40, Y1: 550, X2: 530, Y2: 550, Duration: ms(600), Times: 5, Interval: ms(200)}),
		do(prefix+":cards", taps(270, 480, 7, ms(100))),
		find(prefix+":next", "realpack_next", 1),
		find(prefix+":pass", "realpack_pass", 1),
		find(prefix+":next2", "realpack_next", 1),
	}
}

func concat(parts ...[]Step) []Step {
	var out []Step
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func packGather() *Scenario {
	opening := concat(
		restart("opening", true),
		[]Step{
			await("opening:birth_ok", "birth_ok"),
			do("opening:birth_year",
				tap(150, 700, ms(500)),
				Swipe{X1: 150, Y1: 440, X2: 150, Y2: 900, Duration: ms(200), Times: 1},
				tap(150, 550, ms(500))),
			do("opening:birth_month", tap(400, 700, ms(500)), tap(400, 600, ms(500))),
			do("opening:birth_confirm", tap(270, 860, ms(500))),
			find("opening:birth_ok2", "birth_ok2", 1),
			find("opening:term1", "term1", 1),
			find("opening:term1_close", "term_x", 1),
			find("opening:term2", "term2", 1),
			find("opening:term2_close", "term_x", 1),
			do("opening:terms_agree", tap(85, 645, ms(200)), tap(85, 710, ms(200)), tap(270, 860, ms(200))),
			do("opening:data_usage",
				tap(160, 475, ms(200)), tap(160, 610, ms(200)), tap(160, 745, ms(200)), tap(270, 865, ms(500))),
			do("opening:no_sync", tap(260, 590, ms(500)), tap(270, 820, 2*time.Second)),
			awaitPixel("opening:movie", vision.RGB{R: 2, G: 2, B: 2}, 3,
				taps(485, 900, 4, ms(100)), Wait{Duration: ms(400)}),
			do("opening:after_movie", tap(270, 770, ms(300)), tap(400, 770, ms(500))),
		},
	)

	nickname := []Step{
		{
			Name:    "nickname:enter",
			Kind:    KindPollAndRead,
			Anchor:  TemplateAnchor{Key: "nickname"},
			Actions: []Action{TapAnchor{Times: 1}, tap(260, 410, time.Second), InputResult{Key: PayloadNickname}},
			Read:    &Read{Source: ReadNickname, Key: PayloadNickname},
		},
		find("nickname:ok1", "nick_ok1", 1),
		find("nickname:ok2", "nick_ok2", 1),
		find("nickname:ok3", "nick_ok1", 1),
	}

	firstPack := []Step{
		await("firstpack:screen", "firstpack", tap(260, 550, ms(300)), tap(260, 750, 0)),
		await("firstpack:open", "firstpack_open",
			Swipe{X1: 40, Y1: 550, X2: 530, Y2: 550, Duration: ms(600), Times: 5, Interval: ms(200)},
			Wait{Duration: ms(300)},
			taps(270, 400, 10, ms(100))),
		await("firstpack:swipe", "firstpack_swipe",
			Swipe{X1: 260, Y1: 800, X2: 260, Y2: 40, Duration: ms(100), Times: 5, Interval: ms(200)}),
		await("firstpack:book", "firstpack_logo", taps(270, 640, 5, ms(100))),
		find("firstpack:next", "firstpack_next", 1),
		find("firstpack:ok", "firstpack_ok", 1),
	}

	tutorial := concat(
		[]Step{
			awaitPixel("tutorial:screen", vision.RGB{R: 75, G: 251, B: 234}, 3),
			find("tutorial:mission", "mission", 1),
			find("tutorial:mission_get", "mission_get1", 1),
			find("tutorial:mission_get2", "mission_get1", 1),
			await("tutorial:reward", "mission_reward", Wait{Duration: ms(500)}, tap(270, 900, 0)),
			find("tutorial:reward_ok", "mission_ok", 1),
			do("tutorial:guide",
				Wait{Duration: ms(500)}, tap(270, 500, ms(500)),
				taps(270, 500, 5, ms(100)), Wait{Duration: 3 * time.Second},
				taps(270, 500, 5, ms(100))),
			find("tutorial:guide_ok", "mission_ok", 1),
			find("tutorial:pack_open", "realpack_open", 1),
			find("tutorial:pack_pass", "realpack_pass", 2),
		},
		openPack("tutorial:pack"),
		[]Step{
			find("tutorial:pack_ok", "realpack_ok", 1),
			do("tutorial:dismiss", Wait{Duration: time.Second}, taps(270, 480, 5, ms(200))),
		},
	)

	challenge := []Step{
		find("challenge:icon", "challenge_icon", 1),
		await("challenge:free", "challenge_free", tap(270, 480, ms(200)), taps(370, 770, 6, ms(500)), tap(350, 620, ms(500))),
		await("challenge:free_enabled", "challenge_free_enabled", tap(390, 820, ms(500))),
		find("challenge:pick", "challenge_pick", 5),
		find("challenge:get", "challenge_get", 1),
		find("challenge:pass", "realpack_pass", 1),
		find("challenge:next", "realpack_next", 1),
		find("challenge:result", "challenge_result", 1),
		find("challenge:guide_next", "realpack_next", 1),
		do("challenge:guide", taps(370, 770, 5, ms(500))),
	}

	extraChallenge := []Step{
		find("challenge2:icon", "challenge_icon", 1),
		await("challenge2:title", "challenge_title", tap(270, 400, ms(200))),
		find("challenge2:ok", "challenge_ok", 1),
		find("challenge2:pick", "challenge_pick", 5),
		find("challenge2:get", "challenge_get", 1),
		find("challenge2:pass", "realpack_pass", 1),
		find("challenge2:next", "realpack_next", 1),
		find("challenge2:result", "challenge_result", 1),
		find("challenge2:close", "term_x", 1),
		find("challenge2:back", "challenge_back", 1),
	}

	mission := []Step{
		await("mission:home", "home_enabled"),
		find("mission:open", "mission_enabled", 1),
		find("mission:get1", "mission_get1", 1),
		find("mission:get3", "mission_get3", 1),
		find("mission:ok", "mission_ok", 1),
		do("mission:wait", Wait{Duration: 2 * time.Second}),
		find("mission:close", "mission_x", 1),
	}

	copyID := []Step{
		await("copy_id:home", "home_enabled"),
		find("copy_id:social", "social", 1),
		find("copy_id:friends", "social_friend", 1),
		find("copy_id:add", "social_add", 1),
		{
			Name:     "copy_id:copy",
			Kind:     KindGatedPollAndRead,
			Anchor:   TemplateAnchor{Key: "social_copy"},
			Actions:  []Action{TapAnchor{Times: 1, Interval: ms(300)}},
			Read:     &Read{Source: ReadClipboard, Key: PayloadFriendID},
			Attempts: searchAttempts,
		},
	}

	return &Scenario{
		Kind:  KindPackGather,
		Steps: concat(opening, nickname, firstPack, tutorial, challenge, extraChallenge, mission, copyID),
	}
}

func packOpen(pack string) *Scenario {
	steps := concat(
		restart("pack_open", false),
		[]Step{
			await("pack_open:home", "packpoint"),
			find("pack_open:select", "pack_select", 1),
			find("pack_open:pack", pack, 1),
			do("pack_open:confirm", tap(270, 480, ms(200))),
		},
	)

	for i := 1; i <= 2; i++ {
		p := fmt.Sprintf("pack_open:pack%d", i)
		steps = append(steps,
			find(p+":open", "realpack_open", 1),
			find(p+":pass", "realpack_pass", 1))
		steps = append(steps, openPack(p)...)
	}

	steps = append(steps,
		find("pack_open:hourglass_ok", "realpack_ok", 1),
		do("pack_open:hourglass_guide",
			tap(270, 480, ms(200)), taps(390, 750, 2, ms(200)), taps(365, 770, 2, ms(200)), tap(365, 770, 2*time.Second)),
		find("pack_open:pack3:ok", "realpack_ok", 5),
		find("pack_open:pack3:pass", "realpack_pass", 1),
	)
	steps = append(steps, openPack("pack_open:pack3")...)
	steps = append(steps, do("pack_open:pack3:wait", Wait{Duration: time.Second}))

	for i := 4; i <= 5; i++ {
		p := fmt.Sprintf("pack_open:pack%d", i)
		steps = append(steps,
			do(p+":start", tap(400, 750, 0)),
			find(p+":ok", "realpack_ok", 5),
			find(p+":pass", "realpack_pass", 1))
		steps = append(steps, openPack(p)...)
		steps = append(steps, do(p+":wait", Wait{Duration: time.Second}))
	}

	return &Scenario{Kind: KindPackOpen, Steps: steps}
}

func friendAdd() *Scenario {
	steps := concat(
		restart("friend_add", false),
		[]Step{
			await("friend_add:home", "packpoint"),
			find("friend_add:social", "social", 5),
			find("friend_add:friends", "social_friend", 2),
			{
				Name: "friend_add:accept_all",
				Kind: KindRepeatUntil,
				// Four "9" digits in the header mean the friend list is full.
				Until: &Saturation{Key: "nine", Threshold: 0.97, YLimit: 160, Count: 4},
				Body: []Step{
					find("friend_add:accept", "friend_accept", 1),
					do("friend_add:approve", taps(470, 320, 10, ms(200)), taps(270, 900, 2, ms(500))),
					find("friend_add:refresh", "social_friend", 2),
					do("friend_add:settle", Wait{Duration: ms(500)}),
				},
				MaxRounds: 200,
				Optional:  true,
			},
		},
	)
	return &Scenario{Kind: KindFriendAdd, Steps: steps}
}

func dataDelete() *Scenario {
	steps := concat(
		restart("data_delete", false),
		[]Step{
			do("data_delete:grace", Wait{Duration: 3 * time.Second}),
			find("data_delete:menu", "menu", 1),
			find("data_delete:menu_etc", "menu_etc", 1),
			find("data_delete:menu_account", "menu_acc", 1),
			find("data_delete:delete1", "delete_btn1", 1),
			find("data_delete:delete2", "delete_btn2", 1),
			find("data_delete:delete3", "delete_btn2", 1),
			find("data_delete:confirm", "delete_ok", 1),
			do("data_delete:wipe",
				Wait{Duration: 2 * time.Second},
				StopApp{Package: GamePackage},
				RemoveFile{Path: GameAccountFile}),
		},
	)
	return &Scenario{Kind: KindDataDelete, Steps: steps}
}
