package repositories

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"messaging-service/internal/db"
	"messaging-service/internal/models"
)

var testDB *sqlx.DB

func TestMain(m *testing.M) {
	os.Exit(run(m))
}

func run(m *testing.M) int {
	if os.Getenv("SKIP_DB_TESTS") != "" {
		return m.Run()
	}
	ctx := context.Background()

	container, err := startPostgres(ctx)
	if err != nil {
		log.Printf("postgres container unavailable, skipping repository tests: %v", err)
		return m.Run()
	}
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			log.Printf("failed to terminate container: %s", err)
		}
	}()

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		log.Printf("failed to get connection string: %v", err)
		return m.Run()
	}
	conn, err := sqlx.ConnectContext(ctx, "postgres", connStr)
	if err != nil {
		log.Printf("failed to connect: %v", err)
		return m.Run()
	}
	defer conn.Close()
	if err := db.Migrate(ctx, conn); err != nil {
		log.Printf("failed to migrate: %v", err)
		return 1
	}
	testDB = conn
	return m.Run()
}

func startPostgres(ctx context.Context) (c *postgres.PostgresContainer, err error) {
	// testcontainers panics when no docker provider can be found.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("docker provider: %v", r)
		}
	}()
	return postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("messaging"),
		postgres.WithUsername("messaging"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
}

func requireDB(t *testing.T) *sqlx.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("repository tests need postgres")
	}
	if testDB == nil {
		t.Skip("postgres container not available")
	}
	return testDB
}

func insertUser(t *testing.T, conn *sqlx.DB, username string) string {
	t.Helper()
	var id string
	err := conn.GetContext(context.Background(), &id,
		`INSERT INTO users (username, name) VALUES ($1, $1) RETURNING id`, username+"-"+uuid.NewString()[:8])
	require.NoError(t, err)
	return id
}

func openChat(t *testing.T, repo *ChatRepo, a, b string) models.Chat {
	t.Helper()
	x, y := models.CanonicalPair(a, b)
	chat, err := repo.CreateOrGetChat(context.Background(), x, y)
	require.NoError(t, err)
	return chat
}

func TestCreateOrGetChatIsIdempotent(t *testing.T) {
	conn := requireDB(t)
	ctx := context.Background()
	chats := NewChatRepo(conn)
	alice := insertUser(t, conn, "alice")
	bob := insertUser(t, conn, "bob")

	first := openChat(t, chats, alice, bob)
	second := openChat(t, chats, bob, alice)
	assert.Equal(t, first.ID, second.ID)

	var count int
	require.NoError(t, conn.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM private_chats WHERE id=$1`, first.ID))
	assert.Equal(t, 1, count)

	_, err := chats.GetChat(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrChatNotFound)
}

func TestGetChatsSkipsUnknownIDs(t *testing.T) {
	conn := requireDB(t)
	chats := NewChatRepo(conn)
	alice := insertUser(t, conn, "alice")
	bob := insertUser(t, conn, "bob")
	chat := openChat(t, chats, alice, bob)

	found, err := chats.GetChats(context.Background(), []string{chat.ID, uuid.NewString()})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, chat.ID, found[0].ID)

	ids, err := chats.ListChatIDs(context.Background(), bob)
	require.NoError(t, err)
	assert.Equal(t, []string{chat.ID}, ids)
}

func TestHistoryPagesSurviveConcurrentInserts(t *testing.T) {
	conn := requireDB(t)
	ctx := context.Background()
	chats := NewChatRepo(conn)
	msgs := NewMessageRepo(conn)
	alice := insertUser(t, conn, "alice")
	bob := insertUser(t, conn, "bob")
	chat := openChat(t, chats, alice, bob)

	original := map[string]bool{}
	for i := 0; i < 23; i++ {
		msg, err := msgs.CreateMessage(ctx, chat.ID, alice, "hello")
		require.NoError(t, err)
		original[msg.ID] = true
	}

	const pageSize = 5
	seen := map[string]int{}
	cursor := ""
	for page := 0; page < 10; page++ {
		rows, err := msgs.HistoryPage(ctx, chat.ID, cursor, pageSize+1)
		require.NoError(t, err)
		cursor = ""
		if len(rows) > pageSize {
			cursor = rows[pageSize].ID
			rows = rows[:pageSize]
		}
		for _, row := range rows {
			seen[row.ID]++
		}
		// newer messages land in front of the cursor and must not disturb it
		_, err = msgs.CreateMessage(ctx, chat.ID, bob, "interleaved")
		require.NoError(t, err)
		if cursor == "" {
			break
		}
	}

	for id := range original {
		assert.Equal(t, 1, seen[id], "message %s", id)
	}
	for id, n := range seen {
		assert.Equal(t, 1, n, "message %s repeated", id)
	}
}

func TestHistoryPageOrdersNewestFirst(t *testing.T) {
	conn := requireDB(t)
	ctx := context.Background()
	chats := NewChatRepo(conn)
	msgs := NewMessageRepo(conn)
	alice := insertUser(t, conn, "alice")
	bob := insertUser(t, conn, "bob")
	chat := openChat(t, chats, alice, bob)

	first, err := msgs.CreateMessage(ctx, chat.ID, alice, "one")
	require.NoError(t, err)
	second, err := msgs.CreateMessage(ctx, chat.ID, bob, "two")
	require.NoError(t, err)

	rows, err := msgs.HistoryPage(ctx, chat.ID, uuid.NewString(), 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, second.ID, rows[0].ID)
	assert.Equal(t, first.ID, rows[1].ID)
}

func TestMarkReadIsMonotonic(t *testing.T) {
	conn := requireDB(t)
	ctx := context.Background()
	chats := NewChatRepo(conn)
	msgs := NewMessageRepo(conn)
	alice := insertUser(t, conn, "alice")
	bob := insertUser(t, conn, "bob")
	chat := openChat(t, chats, alice, bob)

	m1, err := msgs.CreateMessage(ctx, chat.ID, alice, "one")
	require.NoError(t, err)
	m2, err := msgs.CreateMessage(ctx, chat.ID, alice, "two")
	require.NoError(t, err)
	own, err := msgs.CreateMessage(ctx, chat.ID, bob, "mine")
	require.NoError(t, err)

	read, err := msgs.MarkRead(ctx, chat.ID, bob)
	require.NoError(t, err)
	require.Len(t, read, 2)
	assert.Equal(t, m1.ID, read[0].ID)
	assert.Equal(t, m2.ID, read[1].ID)
	require.NotNil(t, read[0].ReadAt)

	again, err := msgs.MarkRead(ctx, chat.ID, bob)
	require.NoError(t, err)
	assert.Empty(t, again)

	stored, err := msgs.GetMessage(ctx, m1.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ReadAt)
	assert.True(t, stored.ReadAt.Equal(*read[0].ReadAt))

	mine, err := msgs.GetMessage(ctx, own.ID)
	require.NoError(t, err)
	assert.Nil(t, mine.ReadAt)
}

func TestSoftDeleteIsTerminal(t *testing.T) {
	conn := requireDB(t)
	ctx := context.Background()
	chats := NewChatRepo(conn)
	msgs := NewMessageRepo(conn)
	alice := insertUser(t, conn, "alice")
	bob := insertUser(t, conn, "bob")
	chat := openChat(t, chats, alice, bob)

	msg, err := msgs.CreateMessage(ctx, chat.ID, alice, "oops")
	require.NoError(t, err)

	_, err = msgs.SoftDelete(ctx, msg.ID, bob)
	assert.ErrorIs(t, err, ErrNotMessageSender)

	deleted, err := msgs.SoftDelete(ctx, msg.ID, alice)
	require.NoError(t, err)
	require.NotNil(t, deleted.DeletedAt)
	assert.Nil(t, deleted.DTO().Content)

	_, err = msgs.SoftDelete(ctx, msg.ID, alice)
	assert.ErrorIs(t, err, ErrMessageDeleted)
	_, err = msgs.UpdateContent(ctx, msg.ID, alice, "fixed")
	assert.ErrorIs(t, err, ErrMessageDeleted)

	stored, err := msgs.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "oops", stored.Content)
	assert.True(t, stored.DeletedAt.Equal(*deleted.DeletedAt))

	_, err = msgs.UpdateContent(ctx, uuid.NewString(), alice, "x")
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestUpdateContentStampsEditedAt(t *testing.T) {
	conn := requireDB(t)
	ctx := context.Background()
	chats := NewChatRepo(conn)
	msgs := NewMessageRepo(conn)
	alice := insertUser(t, conn, "alice")
	bob := insertUser(t, conn, "bob")
	chat := openChat(t, chats, alice, bob)

	msg, err := msgs.CreateMessage(ctx, chat.ID, alice, "helo")
	require.NoError(t, err)

	edited, err := msgs.UpdateContent(ctx, msg.ID, alice, "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", edited.Content)
	require.NotNil(t, edited.EditedAt)
}

func TestInboxRowsAndFilter(t *testing.T) {
	conn := requireDB(t)
	ctx := context.Background()
	chats := NewChatRepo(conn)
	msgs := NewMessageRepo(conn)
	alice := insertUser(t, conn, "alice")
	bob := insertUser(t, conn, "bob_100%")
	carol := insertUser(t, conn, "carol")

	quiet := openChat(t, chats, alice, carol)
	busy := openChat(t, chats, alice, bob)
	_, err := msgs.CreateMessage(ctx, busy.ID, bob, "hi")
	require.NoError(t, err)
	gone, err := msgs.CreateMessage(ctx, busy.ID, bob, "secret")
	require.NoError(t, err)
	_, err = msgs.SoftDelete(ctx, gone.ID, bob)
	require.NoError(t, err)

	rows, err := chats.InboxPage(ctx, alice, "", "", 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, busy.ID, rows[0].ChatID)
	assert.Equal(t, bob, rows[0].PeerID)
	assert.Equal(t, 1, rows[0].UnreadCount)
	require.NotNil(t, rows[0].LatestMessage)
	assert.Equal(t, gone.ID, rows[0].LatestMessage.MessageID)
	assert.Nil(t, rows[0].LatestMessage.Content)
	assert.NotNil(t, rows[0].LatestMessage.DeletedAt)

	assert.Equal(t, quiet.ID, rows[1].ChatID)
	assert.Nil(t, rows[1].LatestMessage)

	filtered, err := chats.InboxPage(ctx, alice, "B_100%", "", 10)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, busy.ID, filtered[0].ChatID)

	none, err := chats.InboxPage(ctx, alice, "b%z", "", 10)
	require.NoError(t, err)
	assert.Empty(t, none)

	row, err := chats.GetInboxRow(ctx, bob, busy.ID)
	require.NoError(t, err)
	assert.Equal(t, alice, row.PeerID)
	assert.Equal(t, 0, row.UnreadCount)
}

func TestGetUser(t *testing.T) {
	conn := requireDB(t)
	users := NewUserRepo(conn)
	id := insertUser(t, conn, "dave")

	user, err := users.GetUser(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, user.ID)

	_, err = users.GetUser(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, ErrUserNotFound)
}
