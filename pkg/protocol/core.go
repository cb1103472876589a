// SPDX-FileCopyrightText: 2026 The wl-proxy Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package protocol

// Opcodes of the wl_display and wl_registry messages the engine handles itself.
const (
	DisplaySync        uint16 = 0
	DisplayGetRegistry uint16 = 1

	DisplayError    uint16 = 0
	DisplayDeleteID uint16 = 1

	RegistryBind uint16 = 0

	RegistryGlobal       uint16 = 0
	RegistryGlobalRemove uint16 = 1

	CallbackDone uint16 = 0
)

func msg(name string, args ...Arg) Message {
	return Message{Name: name, Args: args}
}

func since(v uint32, m Message) Message {
	m.Since = v
	return m
}

func destructor(m Message) Message {
	m.Destructor = true
	return m
}

func argInt(name string) Arg    { return Arg{Name: name, Type: Int} }
func argUint(name string) Arg   { return Arg{Name: name, Type: Uint} }
func argFixed(name string) Arg  { return Arg{Name: name, Type: Fixed} }
func argString(name string) Arg { return Arg{Name: name, Type: String} }
func argArray(name string) Arg  { return Arg{Name: name, Type: Array} }
func argFd(name string) Arg     { return Arg{Name: name, Type: Fd} }

func argObject(name, iface string) Arg {
	return Arg{Name: name, Type: Object, Interface: iface}
}

func argNullObject(name, iface string) Arg {
	return Arg{Name: name, Type: Object, Interface: iface, AllowNull: true}
}

func argNewID(name, iface string) Arg {
	return Arg{Name: name, Type: NewID, Interface: iface}
}

var (
	WlDisplay = &Interface{
		Name:    "wl_display",
		Version: 1,
		Requests: []Message{
			msg("sync", argNewID("callback", "wl_callback")),
			msg("get_registry", argNewID("registry", "wl_registry")),
		},
		Events: []Message{
			msg("error", argObject("object_id", ""), argUint("code"), argString("message")),
			msg("delete_id", argUint("id")),
		},
	}

	WlRegistry = &Interface{
		Name:    "wl_registry",
		Version: 1,
		Requests: []Message{
			msg("bind", argUint("name"), argNewID("id", "")),
		},
		Events: []Message{
			msg("global", argUint("name"), argString("interface"), argUint("version")),
			msg("global_remove", argUint("name")),
		},
	}

	WlCallback = &Interface{
		Name:    "wl_callback",
		Version: 1,
		Events: []Message{
			destructor(msg("done", argUint("callback_data"))),
		},
	}

	WlCompositor = &Interface{
		Name:    "wl_compositor",
		Version: 6,
		Requests: []Message{
			msg("create_surface", argNewID("id", "wl_surface")),
			msg("create_region", argNewID("id", "wl_region")),
		},
	}

	WlShmPool = &Interface{
		Name:    "wl_shm_pool",
		Version: 2,
		Requests: []Message{
			msg("create_buffer", argNewID("id", "wl_buffer"), argInt("offset"),
				argInt("width"), argInt("height"), argInt("stride"), argUint("format")),
			destructor(msg("destroy")),
			msg("resize", argInt("size")),
		},
	}

	WlShm = &Interface{
		Name:    "wl_shm",
		Version: 2,
		Requests: []Message{
			msg("create_pool", argNewID("id", "wl_shm_pool"), argFd("fd"), argInt("size")),
			since(2, destructor(msg("release"))),
		},
		Events: []Message{
			msg("format", argUint("format")),
		},
	}

	WlBuffer = &Interface{
		Name:    "wl_buffer",
		Version: 1,
		Requests: []Message{
			destructor(msg("destroy")),
		},
		Events: []Message{
			msg("release"),
		},
	}

	WlSurface = &Interface{
		Name:    "wl_surface",
		Version: 6,
		Requests: []Message{
			destructor(msg("destroy")),
			msg("attach", argNullObject("buffer", "wl_buffer"), argInt("x"), argInt("y")),
			msg("damage", argInt("x"), argInt("y"), argInt("width"), argInt("height")),
			msg("frame", argNewID("callback", "wl_callback")),
			msg("set_opaque_region", argNullObject("region", "wl_region")),
			msg("set_input_region", argNullObject("region", "wl_region")),
			msg("commit"),
			since(2, msg("set_buffer_transform", argInt("transform"))),
			since(3, msg("set_buffer_scale", argInt("scale"))),
			since(4, msg("damage_buffer", argInt("x"), argInt("y"), argInt("width"), argInt("height"))),
			since(5, msg("offset", argInt("x"), argInt("y"))),
		},
		Events: []Message{
			msg("enter", argObject("output", "wl_output")),
			msg("leave", argObject("output", "wl_output")),
			since(6, msg("preferred_buffer_scale", argInt("factor"))),
			since(6, msg("preferred_buffer_transform", argUint("transform"))),
		},
	}

	WlRegion = &Interface{
		Name:    "wl_region",
		Version: 1,
		Requests: []Message{
			destructor(msg("destroy")),
			msg("add", argInt("x"), argInt("y"), argInt("width"), argInt("height")),
			msg("subtract", argInt("x"), argInt("y"), argInt("width"), argInt("height")),
		},
	}

	WlSeat = &Interface{
		Name:    "wl_seat",
		Version: 9,
		Requests: []Message{
			msg("get_pointer", argNewID("id", "wl_pointer")),
			msg("get_keyboard", argNewID("id", "wl_keyboard")),
			msg("get_touch", argNewID("id", "wl_touch")),
			since(5, destructor(msg("release"))),
		},
		Events: []Message{
			msg("capabilities", argUint("capabilities")),
			since(2, msg("name", argString("name"))),
		},
	}

	WlPointer = &Interface{
		Name:    "wl_pointer",
		Version: 9,
		Requests: []Message{
			msg("set_cursor", argUint("serial"), argNullObject("surface", "wl_surface"),
				argInt("hotspot_x"), argInt("hotspot_y")),
			since(3, destructor(msg("release"))),
		},
		Events: []Message{
			msg("enter", argUint("serial"), argObject("surface", "wl_surface"),
				argFixed("surface_x"), argFixed("surface_y")),
			msg("leave", argUint("serial"), argObject("surface", "wl_surface")),
			msg("motion", argUint("time"), argFixed("surface_x"), argFixed("surface_y")),
			msg("button", argUint("serial"), argUint("time"), argUint("button"), argUint("state")),
			msg("axis", argUint("time"), argUint("axis"), argFixed("value")),
			since(5, msg("frame")),
			since(5, msg("axis_source", argUint("axis_source"))),
			since(5, msg("axis_stop", argUint("time"), argUint("axis"))),
			since(5, msg("axis_discrete", argUint("axis"), argInt("discrete"))),
			since(8, msg("axis_value120", argUint("axis"), argInt("value120"))),
			since(9, msg("axis_relative_direction", argUint("axis"), argUint("direction"))),
		},
	}

	WlKeyboard = &Interface{
		Name:    "wl_keyboard",
		Version: 9,
		Requests: []Message{
			since(3, destructor(msg("release"))),
		},
		Events: []Message{
			msg("keymap", argUint("format"), argFd("fd"), argUint("size")),
			msg("enter", argUint("serial"), argObject("surface", "wl_surface"), argArray("keys")),
			msg("leave", argUint("serial"), argObject("surface", "wl_surface")),
			msg("key", argUint("serial"), argUint("time"), argUint("key"), argUint("state")),
			msg("modifiers", argUint("serial"), argUint("mods_depressed"), argUint("mods_latched"),
				argUint("mods_locked"), argUint("group")),
			since(4, msg("repeat_info", argInt("rate"), argInt("delay"))),
		},
	}

	WlTouch = &Interface{
		Name:    "wl_touch",
		Version: 9,
		Requests: []Message{
			since(3, destructor(msg("release"))),
		},
		Events: []Message{
			msg("down", argUint("serial"), argUint("time"), argObject("surface", "wl_surface"),
				argInt("id"), argFixed("x"), argFixed("y")),
			msg("up", argUint("serial"), argUint("time"), argInt("id")),
			msg("motion", argUint("time"), argInt("id"), argFixed("x"), argFixed("y")),
			msg("frame"),
			msg("cancel"),
			since(6, msg("shape", argInt("id"), argFixed("major"), argFixed("minor"))),
			since(6, msg("orientation", argInt("id"), argFixed("orientation"))),
		},
	}

	WlOutput = &Interface{
		Name:    "wl_output",
		Version: 4,
		Requests: []Message{
			since(3, destructor(msg("release"))),
		},
		Events: []Message{
			msg("geometry", argInt("x"), argInt("y"), argInt("physical_width"), argInt("physical_height"),
				argInt("subpixel"), argString("make"), argString("model"), argInt("transform")),
			msg("mode", argUint("flags"), argInt("width"), argInt("height"), argInt("refresh")),
			since(2, msg("done")),
			since(2, msg("scale", argInt("factor"))),
			since(4, msg("name", argString("name"))),
			since(4, msg("description", argString("description"))),
		},
	}
)

var coreInterfaces = []*Interface{
	WlDisplay,
	WlRegistry,
	WlCallback,
	WlCompositor,
	WlShmPool,
	WlShm,
	WlBuffer,
	WlSurface,
	WlRegion,
	WlSeat,
	WlPointer,
	WlKeyboard,
	WlTouch,
	WlOutput,
}

func init() {
	for _, iface := range coreInterfaces {
		iface.finish()
	}
}
