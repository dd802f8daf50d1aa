package repositories

import "strings"

// Both pages rank rows with ROW_NUMBER over a total order, resolve the cursor
// id to its rank (1 when absent or unknown) and return rows from that rank
// on. The caller asks for one row more than the page size.

// inboxCTE ranks the chats of $1 by latest message time, newest first. $2 is
// an optional ILIKE pattern on the peer username.
const inboxCTE = `
WITH inbox AS (
    SELECT
        pc.id AS chat_id,
        peer.id AS peer_id,
        peer.username AS title,
        peer.avatar_url AS avatar_url,
        (
            SELECT COUNT(*) FROM private_messages um
            WHERE um.private_chat_id = pc.id
              AND um.sender_id <> $1
              AND um.read_at IS NULL
              AND um.deleted_at IS NULL
        ) AS unread_count,
        lm.id AS latest_id,
        lm.sender_id AS latest_sender_id,
        lm.content AS latest_content,
        lm.created_at AS latest_created_at,
        lm.deleted_at AS latest_deleted_at,
        ROW_NUMBER() OVER (ORDER BY COALESCE(lm.created_at, pc.created_at) DESC, pc.id ASC) AS rn
    FROM private_chats pc
    JOIN users peer ON peer.id = CASE WHEN pc.user1_id = $1 THEN pc.user2_id ELSE pc.user1_id END
    LEFT JOIN LATERAL (
        SELECT id, sender_id, content, created_at, deleted_at
        FROM private_messages
        WHERE private_chat_id = pc.id
        ORDER BY created_at DESC, id DESC
        LIMIT 1
    ) lm ON TRUE
    WHERE (pc.user1_id = $1 OR pc.user2_id = $1)
      AND ($2::text IS NULL OR peer.username ILIKE $2::text)
)`

const inboxColumns = `chat_id, peer_id, title, avatar_url, unread_count,
    latest_id, latest_sender_id, latest_content, latest_created_at, latest_deleted_at`

const inboxPageQuery = inboxCTE + `,
cursor_rank AS (
    SELECT COALESCE((SELECT rn FROM inbox WHERE chat_id = $3::uuid), 1) AS rn
)
SELECT ` + inboxColumns + `
FROM inbox, cursor_rank
WHERE inbox.rn >= cursor_rank.rn
ORDER BY inbox.rn ASC
LIMIT $4`

const inboxRowQuery = inboxCTE + `
SELECT ` + inboxColumns + `
FROM inbox
WHERE chat_id = $3::uuid`

// historyQuery ranks the messages of chat $1 newest first.
const historyQuery = `
WITH ordered AS (
    SELECT ` + messageColumns + `,
        ROW_NUMBER() OVER (ORDER BY created_at DESC, id ASC) AS rn
    FROM private_messages
    WHERE private_chat_id = $1
),
cursor_rank AS (
    SELECT COALESCE((SELECT rn FROM ordered WHERE id = $2::uuid), 1) AS rn
)
SELECT ` + messageColumns + `
FROM ordered, cursor_rank
WHERE ordered.rn >= cursor_rank.rn
ORDER BY ordered.rn ASC
LIMIT $3`

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern turns a title filter into a substring ILIKE pattern, or NULL.
func likePattern(title string) any {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil
	}
	return "%" + likeEscaper.Replace(title) + "%"
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
