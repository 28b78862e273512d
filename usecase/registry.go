package usecase

import (
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/AzielCF/az-hub/domains/bridge"
	"github.com/AzielCF/az-hub/domains/routing"
	pkgError "github.com/AzielCF/az-hub/pkg/error"
)

// Registry is the static operation table built once at startup. It is the
// single source of operation names for REST dispatch, MCP tool listing
// and routing.
type Registry struct {
	ops   map[string]routing.Operation
	order []string
}

// NewRegistry builds the full operation table. Pass-through entries that
// do not pin a strategy inherit defaultStrategy.
func NewRegistry(defaultStrategy routing.Strategy) *Registry {
	if !routing.ValidStrategy(defaultStrategy) {
		defaultStrategy = routing.PreferGo
	}
	r := &Registry{ops: make(map[string]routing.Operation)}
	r.install(defaultStrategy)
	return r
}

func (r *Registry) add(op routing.Operation) {
	if _, exists := r.ops[op.Name]; exists {
		panic("registry: duplicate operation " + op.Name)
	}
	if op.Timeout == "" {
		op.Timeout = bridge.TimeoutDefault
	}
	r.ops[op.Name] = op
	r.order = append(r.order, op.Name)
}

// pass registers a pass-through operation routed by strategy.
func (r *Registry) pass(name string, cap bridge.Capability, strategy routing.Strategy, method, path string, timeout bridge.TimeoutClass, summary string) {
	r.add(routing.Operation{
		Name:       name,
		Kind:       routing.KindPassthrough,
		Capability: cap,
		Strategy:   strategy,
		Method:     method,
		Path:       path,
		Timeout:    timeout,
		Summary:    summary,
	})
}

// passTo registers a pass-through pinned to one bridge (PRIMARY_ONLY).
func (r *Registry) passTo(name string, cap bridge.Capability, id bridge.ID, method, path string, timeout bridge.TimeoutClass, summary string) {
	r.add(routing.Operation{
		Name:       name,
		Kind:       routing.KindPassthrough,
		Capability: cap,
		Strategy:   routing.PrimaryOnly,
		Bridge:     id,
		Method:     method,
		Path:       path,
		Timeout:    timeout,
		Summary:    summary,
	})
}

// internal registers an operation served by the hub's own engines.
func (r *Registry) internal(name string, cap bridge.Capability, summary string) {
	r.add(routing.Operation{
		Name:       name,
		Kind:       routing.KindInternal,
		Capability: cap,
		Summary:    summary,
	})
}

func (r *Registry) install(def routing.Strategy) {
	const (
		post = http.MethodPost
		get  = http.MethodGet
	)

	// Messaging: composing and sending through the go bridge.
	r.pass("send_message", bridge.CapMessaging, def, post, "/api/send/message", bridge.TimeoutDefault, "Send a text message to a chat")
	r.pass("send_image", bridge.CapMessaging, def, post, "/api/send/image", bridge.TimeoutMedia, "Send an image with optional caption")
	r.pass("send_file", bridge.CapMessaging, def, post, "/api/send/file", bridge.TimeoutMedia, "Send a document or arbitrary file")
	r.pass("send_audio", bridge.CapMessaging, def, post, "/api/send/audio", bridge.TimeoutMedia, "Send an audio message or voice note")
	r.pass("send_video", bridge.CapMessaging, def, post, "/api/send/video", bridge.TimeoutMedia, "Send a video with optional caption")
	r.pass("send_sticker", bridge.CapMessaging, def, post, "/api/send/sticker", bridge.TimeoutMedia, "Send a sticker")
	r.pass("send_contact", bridge.CapMessaging, def, post, "/api/send/contact", bridge.TimeoutDefault, "Send a contact card")
	r.pass("send_location", bridge.CapMessaging, def, post, "/api/send/location", bridge.TimeoutDefault, "Send a location pin")
	r.pass("send_link", bridge.CapMessaging, def, post, "/api/send/link", bridge.TimeoutDefault, "Send a link with preview")
	r.pass("send_poll", bridge.CapMessaging, def, post, "/api/send/poll", bridge.TimeoutDefault, "Send a poll with up to 12 options")
	r.pass("send_presence", bridge.CapMessaging, def, post, "/api/send/presence", bridge.TimeoutShort, "Publish typing or online presence to a chat")

	// Acting on existing messages.
	r.pass("react_message", bridge.CapMessaging, def, post, "/api/message/{message_id}/reaction", bridge.TimeoutDefault, "Add or replace an emoji reaction")
	r.pass("revoke_message", bridge.CapMessaging, def, post, "/api/message/{message_id}/revoke", bridge.TimeoutDefault, "Revoke a sent message for everyone")
	r.pass("delete_message", bridge.CapMessaging, def, post, "/api/message/{message_id}/delete", bridge.TimeoutDefault, "Delete a message locally")
	r.pass("edit_message", bridge.CapMessaging, def, post, "/api/message/{message_id}/update", bridge.TimeoutDefault, "Edit the text of a sent message")
	r.pass("star_message", bridge.CapMessaging, def, post, "/api/message/{message_id}/star", bridge.TimeoutShort, "Star a message")
	r.pass("unstar_message", bridge.CapMessaging, def, post, "/api/message/{message_id}/unstar", bridge.TimeoutShort, "Remove a message star")
	r.pass("mark_as_read", bridge.CapMessaging, def, post, "/api/mark_read", bridge.TimeoutShort, "Mark chat messages as read; empty message_ids means the whole chat")
	r.pass("download_media", bridge.CapMessaging, def, get, "/api/message/{message_id}/download", bridge.TimeoutMedia, "Download the media attached to a message")

	// Canonical store queries.
	r.pass("list_chats", bridge.CapStorage, def, get, "/api/chats", bridge.TimeoutDefault, "List chats ordered by recent activity")
	r.pass("get_chat", bridge.CapStorage, def, get, "/api/chats/{chat_jid}", bridge.TimeoutShort, "Get one chat's metadata")
	r.pass("list_messages", bridge.CapStorage, def, get, "/api/chats/{chat_jid}/messages", bridge.TimeoutDefault, "Page through a chat's stored messages")
	r.pass("search_messages", bridge.CapStorage, def, get, "/api/messages/search", bridge.TimeoutDefault, "Full-text search over stored messages")
	r.pass("get_chat_presence", bridge.CapStorage, def, get, "/api/chats/{chat_jid}/presence", bridge.TimeoutShort, "Get last seen / typing state for a chat")

	// Contacts.
	r.pass("list_contacts", bridge.CapStorage, def, get, "/api/contacts", bridge.TimeoutDefault, "List known contacts")
	r.pass("search_contacts", bridge.CapStorage, def, get, "/api/contacts/search", bridge.TimeoutShort, "Search contacts by name or number")
	r.pass("get_contact_info", bridge.CapStorage, def, get, "/api/contacts/{jid}", bridge.TimeoutShort, "Get one contact's profile data")
	r.pass("get_last_interaction", bridge.CapStorage, def, get, "/api/contacts/{jid}/last-interaction", bridge.TimeoutShort, "Get the most recent message exchanged with a contact")
	r.pass("check_phones", bridge.CapStorage, def, post, "/api/contacts/check", bridge.TimeoutShort, "Check which phone numbers are registered on WhatsApp")
	r.pass("get_avatar", bridge.CapStorage, def, get, "/api/contacts/{jid}/avatar", bridge.TimeoutShort, "Fetch a contact's avatar URL")

	// Communities.
	r.pass("list_communities", bridge.CapCommunity, def, get, "/api/communities/list", bridge.TimeoutShort, "List joined communities")
	r.pass("get_community", bridge.CapCommunity, def, get, "/api/communities/{jid}", bridge.TimeoutShort, "Get one community's metadata")
	r.pass("get_community_groups", bridge.CapCommunity, def, get, "/api/communities/{jid}/groups", bridge.TimeoutShort, "List a community's member groups")
	r.pass("mark_community_read", bridge.CapCommunity, def, post, "/api/communities/{jid}/mark-read", bridge.TimeoutDefault, "Mark every group of a community as read")

	// Groups.
	r.pass("create_group", bridge.CapCommunity, def, post, "/api/groups", bridge.TimeoutDefault, "Create a group with participants")
	r.pass("list_groups", bridge.CapCommunity, def, get, "/api/groups", bridge.TimeoutDefault, "List joined groups")
	r.pass("get_group_info", bridge.CapCommunity, def, get, "/api/groups/{jid}", bridge.TimeoutShort, "Get one group's metadata")
	r.pass("join_group_with_link", bridge.CapCommunity, def, post, "/api/groups/join", bridge.TimeoutShort, "Join a group using an invite link")
	r.pass("leave_group", bridge.CapCommunity, def, post, "/api/groups/{jid}/leave", bridge.TimeoutShort, "Leave a group")
	r.pass("add_group_participants", bridge.CapCommunity, def, post, "/api/groups/{jid}/participants/add", bridge.TimeoutDefault, "Add participants to a group")
	r.pass("remove_group_participants", bridge.CapCommunity, def, post, "/api/groups/{jid}/participants/remove", bridge.TimeoutDefault, "Remove participants from a group")
	r.pass("promote_group_participants", bridge.CapCommunity, def, post, "/api/groups/{jid}/participants/promote", bridge.TimeoutDefault, "Promote participants to admin")
	r.pass("demote_group_participants", bridge.CapCommunity, def, post, "/api/groups/{jid}/participants/demote", bridge.TimeoutDefault, "Demote group admins")
	r.pass("set_group_name", bridge.CapCommunity, def, post, "/api/groups/{jid}/name", bridge.TimeoutShort, "Rename a group")
	r.pass("set_group_photo", bridge.CapCommunity, def, post, "/api/groups/{jid}/photo", bridge.TimeoutMedia, "Set a group's photo")
	r.pass("get_group_invite_link", bridge.CapCommunity, def, get, "/api/groups/{jid}/invite-link", bridge.TimeoutShort, "Get a group's invite link")
	r.pass("revoke_group_invite_link", bridge.CapCommunity, def, post, "/api/groups/{jid}/invite-link/revoke", bridge.TimeoutShort, "Revoke and rotate a group's invite link")
	r.pass("set_group_announce", bridge.CapCommunity, def, post, "/api/groups/{jid}/announce", bridge.TimeoutShort, "Toggle admins-only posting")
	r.pass("set_group_locked", bridge.CapCommunity, def, post, "/api/groups/{jid}/locked", bridge.TimeoutShort, "Toggle admins-only group settings")

	// Newsletters.
	r.pass("list_newsletters", bridge.CapStorage, def, get, "/api/newsletters", bridge.TimeoutDefault, "List followed newsletters")
	r.pass("get_newsletter_info", bridge.CapStorage, def, get, "/api/newsletters/{jid}", bridge.TimeoutShort, "Get one newsletter's metadata")
	r.pass("follow_newsletter", bridge.CapStorage, def, post, "/api/newsletters/{jid}/follow", bridge.TimeoutShort, "Follow a newsletter")
	r.pass("unfollow_newsletter", bridge.CapStorage, def, post, "/api/newsletters/{jid}/unfollow", bridge.TimeoutShort, "Unfollow a newsletter")
	r.pass("mute_newsletter", bridge.CapStorage, def, post, "/api/newsletters/{jid}/mute", bridge.TimeoutShort, "Mute a newsletter")
	r.pass("unmute_newsletter", bridge.CapStorage, def, post, "/api/newsletters/{jid}/unmute", bridge.TimeoutShort, "Unmute a newsletter")

	// Privacy, profile, business.
	r.pass("get_privacy_settings", bridge.CapMessaging, def, get, "/api/privacy", bridge.TimeoutShort, "Get account privacy settings")
	r.pass("set_privacy_setting", bridge.CapMessaging, def, post, "/api/privacy", bridge.TimeoutShort, "Change one privacy setting")
	r.pass("get_blocklist", bridge.CapMessaging, def, get, "/api/privacy/blocklist", bridge.TimeoutShort, "List blocked contacts")
	r.pass("update_blocklist", bridge.CapMessaging, def, post, "/api/privacy/blocklist", bridge.TimeoutShort, "Block or unblock a contact")
	r.pass("get_profile", bridge.CapMessaging, def, get, "/api/profile", bridge.TimeoutShort, "Get the logged-in account profile")
	r.pass("set_profile_name", bridge.CapMessaging, def, post, "/api/profile/name", bridge.TimeoutShort, "Set the account display name")
	r.pass("set_profile_status", bridge.CapMessaging, def, post, "/api/profile/status", bridge.TimeoutShort, "Set the account status text")
	r.pass("set_profile_photo", bridge.CapMessaging, def, post, "/api/profile/photo", bridge.TimeoutMedia, "Set the account photo")
	r.pass("get_business_profile", bridge.CapMessaging, def, get, "/api/business/{jid}", bridge.TimeoutShort, "Get a business account's profile")

	// Bulk history surface, pinned to the baileys bridge.
	r.passTo("history_status", bridge.CapHistory, bridge.Baileys, get, "/api/history/status", bridge.TimeoutShort, "Report history sync progress")
	r.passTo("trigger_history_sync", bridge.CapHistory, bridge.Baileys, post, "/api/history/sync", bridge.TimeoutShort, "Start a full-history sync (fire-and-forget)")
	r.passTo("fetch_older_messages", bridge.CapHistory, bridge.Baileys, post, "/api/history/fetch-older", bridge.TimeoutDefault, "Request messages older than a known anchor")
	r.passTo("cancel_history_sync", bridge.CapHistory, bridge.Baileys, post, "/api/history/cancel", bridge.TimeoutShort, "Pause the running history sync")
	r.passTo("resume_history_sync", bridge.CapHistory, bridge.Baileys, post, "/api/history/resume", bridge.TimeoutShort, "Resume a paused history sync")
	r.passTo("list_pending_chats", bridge.CapHistory, bridge.Baileys, get, "/api/chats/pending", bridge.TimeoutDefault, "List chats holding undrained history")

	// Diagnostics that can land on either bridge.
	r.pass("bridge_ping", bridge.CapDiagnose, routing.RoundRobin, get, "/health", bridge.TimeoutHealth, "Ping one bridge, alternating between them")
	r.pass("bridge_status", bridge.CapDiagnose, routing.Fastest, get, "/health", bridge.TimeoutHealth, "Fetch the raw health body from the quickest bridge")

	// Operations served by the hub's own engines.
	r.internal("sync_database", bridge.CapHistory, "Drain baileys history into the canonical store")
	r.internal("sync_status", bridge.CapHistory, "Look up a reconciliation run by id")
	r.internal("list_sync_runs", bridge.CapHistory, "List recent reconciliation runs")
	r.internal("cancel_sync", bridge.CapHistory, "Cancel a running reconciliation")
	r.internal("mark_community_read_with_history", bridge.CapCommunity, "Backfill history for a community, then mark it read")
	r.internal("bridge_health", bridge.CapDiagnose, "Aggregate health over both bridges")
	r.internal("wait_for_bridge", bridge.CapDiagnose, "Block until a bridge reaches a classification")
	r.internal("routing_info", bridge.CapDiagnose, "Explain where an operation would be routed")
	r.internal("list_operations", bridge.CapDiagnose, "List the operation registry")
}

// Lookup returns the entry for name.
func (r *Registry) Lookup(name string) (routing.Operation, bool) {
	op, ok := r.ops[name]
	return op, ok
}

// All returns every operation in registration order.
func (r *Registry) All() []routing.Operation {
	out := make([]routing.Operation, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.ops[name])
	}
	return out
}

// ByKind filters the registry; an empty kind returns everything.
func (r *Registry) ByKind(kind routing.Kind) []routing.Operation {
	if kind == "" {
		return r.All()
	}
	var out []routing.Operation
	for _, name := range r.order {
		if op := r.ops[name]; op.Kind == kind {
			out = append(out, op)
		}
	}
	return out
}

// Names returns every operation name, sorted.
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	sort.Strings(names)
	return names
}

var pathParamPattern = regexp.MustCompile(`\{([a-z_]+)\}`)

// PathParams lists the placeholders of a path template in order.
func PathParams(template string) []string {
	matches := pathParamPattern.FindAllStringSubmatch(template, -1)
	params := make([]string, 0, len(matches))
	for _, m := range matches {
		params = append(params, m[1])
	}
	return params
}

// RenderPath substitutes {param} placeholders from args and reports which
// keys it consumed. A placeholder with no matching argument is a caller
// error.
func RenderPath(template string, args map[string]any) (string, []string, error) {
	consumed := make([]string, 0, 2)
	var missing []string

	rendered := pathParamPattern.ReplaceAllStringFunc(template, func(m string) string {
		key := strings.Trim(m, "{}")
		val, ok := args[key]
		if !ok {
			missing = append(missing, key)
			return m
		}
		consumed = append(consumed, key)
		return url.PathEscape(fmt.Sprintf("%v", val))
	})

	if len(missing) > 0 {
		return "", nil, pkgError.ValidationError(
			fmt.Sprintf("missing path parameter(s): %s", strings.Join(missing, ", ")))
	}
	return rendered, consumed, nil
}
